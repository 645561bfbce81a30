package stockentry

import (
	"context"
	"time"

	"github.com/atlas-erp/atlas-erp/internal/ledger"
)

type ItemDetailsRequest struct {
	ItemCode string `json:"item_code" validate:"required,max=140"`
	Company  string `json:"company,omitempty" validate:"max=140"`
}

type ItemDetailsResponse struct {
	ItemCode         string  `json:"item_code"`
	ItemName         string  `json:"item_name"`
	Description      string  `json:"description,omitempty"`
	StockUOM         string  `json:"stock_uom"`
	UOM              string  `json:"uom"`
	ConversionFactor float64 `json:"conversion_factor"`
	ExpenseAccount   string  `json:"expense_account,omitempty"`
	CostCenter       string  `json:"cost_center,omitempty"`
}

type UOMDetailsRequest struct {
	ItemCode string  `json:"item_code" validate:"required,max=140"`
	UOM      string  `json:"uom" validate:"required,max=50"`
	Qty      float64 `json:"qty" validate:"required,gt=0"`
}

type UOMDetailsResponse struct {
	ConversionFactor float64 `json:"conversion_factor"`
	TransferQty      float64 `json:"transfer_qty"`
}

type WarehouseDetailsRequest struct {
	ItemCode  string    `json:"item_code" validate:"required,max=140"`
	Warehouse string    `json:"warehouse" validate:"required,max=140"`
	PostedAt  time.Time `json:"posted_at" validate:"required"`
}

type WarehouseDetailsResponse struct {
	ActualQty float64 `json:"actual_qty"`
	BasicRate float64 `json:"basic_rate"`
}

type ProductionOrderDetailsResponse struct {
	Name             string  `json:"name"`
	ProductionItem   string  `json:"production_item"`
	BOMNo            string  `json:"bom_no"`
	UseMultiLevelBOM bool    `json:"use_multi_level_bom"`
	WIPWarehouse     string  `json:"wip_warehouse"`
	FGWarehouse      string  `json:"fg_warehouse"`
	PendingFGQty     float64 `json:"pending_fg_qty"`
}

// ItemLookup resolves an item master row with the company account
// fallbacks applied, for form prefill of a new line.
func (s *Service) ItemLookup(ctx context.Context, req ItemDetailsRequest) (ItemDetailsResponse, error) {
	d, err := s.master.ItemDetails(ctx, req.ItemCode)
	if err != nil {
		return ItemDetailsResponse{}, err
	}
	if d.ItemCode == "" {
		return ItemDetailsResponse{}, newError(ErrKindDoesNotExist, "item %s does not exist", req.ItemCode)
	}
	if !d.IsStockItem {
		return ItemDetailsResponse{}, newError(ErrKindNotStockItem, "item %s is not a stock item", req.ItemCode)
	}
	var defaults CompanyDefaults
	if req.Company != "" {
		defaults, err = s.master.CompanyDefaults(ctx, req.Company)
		if err != nil {
			return ItemDetailsResponse{}, err
		}
	}
	return ItemDetailsResponse{
		ItemCode:         d.ItemCode,
		ItemName:         d.ItemName,
		Description:      d.Description,
		StockUOM:         d.StockUOM,
		UOM:              d.StockUOM,
		ConversionFactor: 1,
		ExpenseAccount:   firstNonEmpty(d.ExpenseAccount, defaults.ExpenseAccount),
		CostCenter:       firstNonEmpty(d.CostCenter, defaults.CostCenter),
	}, nil
}

// UOMDetails resolves the conversion factor between a transaction unit and
// the item's stock unit and scales the quantity with it.
func (s *Service) UOMDetails(ctx context.Context, req UOMDetailsRequest) (UOMDetailsResponse, error) {
	d, err := s.master.ItemDetails(ctx, req.ItemCode)
	if err != nil {
		return UOMDetailsResponse{}, err
	}
	if d.ItemCode == "" {
		return UOMDetailsResponse{}, newError(ErrKindDoesNotExist, "item %s does not exist", req.ItemCode)
	}
	factor := 1.0
	if req.UOM != d.StockUOM {
		factor, err = s.master.UOMConversionFactor(ctx, req.ItemCode, req.UOM)
		if err != nil {
			return UOMDetailsResponse{}, err
		}
		if factor <= 0 {
			return UOMDetailsResponse{}, newError(ErrKindMappingMismatch,
				"no conversion from %s to %s for item %s", req.UOM, d.StockUOM, req.ItemCode)
		}
	}
	return UOMDetailsResponse{
		ConversionFactor: factor,
		TransferQty:      req.Qty * factor,
	}, nil
}

// WarehouseDetails reports the stock level and carrying rate of an item in a
// warehouse at a posting time.
func (s *Service) WarehouseDetails(ctx context.Context, req WarehouseDetailsRequest) (WarehouseDetailsResponse, error) {
	q := ledger.LevelQuery{ItemCode: req.ItemCode, Warehouse: req.Warehouse, AsOf: req.PostedAt}
	level, err := s.ledger.PreviousStockLevel(ctx, q)
	if err != nil {
		return WarehouseDetailsResponse{}, err
	}
	rate, err := s.ledger.MovingAverageRate(ctx, q)
	if err != nil {
		return WarehouseDetailsResponse{}, err
	}
	return WarehouseDetailsResponse{
		ActualQty: level.QtyAfterTransaction,
		BasicRate: rate,
	}, nil
}

// ProductionOrderDetails reports a submitted order's warehouses, BOM and the
// finished-goods quantity still to be produced.
func (s *Service) ProductionOrderDetails(ctx context.Context, name string) (ProductionOrderDetailsResponse, error) {
	order, err := s.orders.GetOrder(ctx, name)
	if err != nil {
		return ProductionOrderDetailsResponse{}, err
	}
	pending := order.Qty - order.ProducedQty
	if pending < 0 {
		pending = 0
	}
	return ProductionOrderDetailsResponse{
		Name:             order.Name,
		ProductionItem:   order.ProductionItem,
		BOMNo:            order.BOMNo,
		UseMultiLevelBOM: order.UseMultiLevelBOM,
		WIPWarehouse:     order.WIPWarehouse,
		FGWarehouse:      order.FGWarehouse,
		PendingFGQty:     pending,
	}, nil
}
