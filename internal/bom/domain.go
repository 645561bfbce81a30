package bom

import "errors"

// BOM is a bill of materials: the recipe mapping a finished item to the raw
// material quantities required to produce Quantity units of it.
type BOM struct {
	No        string
	ItemCode  string
	Quantity  float64
	IsActive  bool
	Submitted bool
	Items     []Item
}

// Item is one raw material row of a BOM. SubBOMNo references the BOM of a
// sub-assembly when the row itself is manufactured.
type Item struct {
	ItemCode         string
	Qty              float64
	UOM              string
	DefaultWarehouse string
	SubBOMNo         string
}

// ExplodedItem is a raw material requirement scaled to a production quantity.
type ExplodedItem struct {
	ItemCode         string
	Qty              float64
	UOM              string
	DefaultWarehouse string
}

var (
	// ErrBOMNotFound indicates the referenced BOM does not exist.
	ErrBOMNotFound = errors.New("bom: not found")
	// ErrBOMCycle indicates sub-assemblies reference each other.
	ErrBOMCycle = errors.New("bom: cyclic sub-assembly reference")
	// ErrBOMQuantity indicates a BOM with a non-positive produced quantity.
	ErrBOMQuantity = errors.New("bom: quantity must be positive")
)
