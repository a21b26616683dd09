// Package campaign projects the outcome of a discount campaign from
// historical sales.
//
// The baseline is the filtered sales history scaled from the configured
// history window onto the campaign length. Demand responds to the discount
// through a per-category elasticity; promotion spend is a share of projected
// revenue capped by the budget, and fulfillment is a flat cost per unit.
package campaign
