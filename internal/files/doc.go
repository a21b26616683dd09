// Package files discovers input tables on disk.
//
// Discovery lists the CSV and Excel files in a directory and matches them
// to entity types by file name prefix:
//
//	discovery := files.NewDiscovery("/path/to/base")
//	found, err := discovery.MatchTables("data", schema.DefaultRegistry().Types())
//	if err != nil {
//	    return err
//	}
//	sales, ok := found[schema.Sales]
package files
