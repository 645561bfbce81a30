package stockentry

import "time"

type StockEntryLineRequest struct {
	ItemCode            string  `json:"item_code" validate:"required,max=140"`
	SourceWarehouse     string  `json:"source_warehouse,omitempty" validate:"max=140"`
	TargetWarehouse     string  `json:"target_warehouse,omitempty" validate:"max=140"`
	Qty                 float64 `json:"qty" validate:"required,gt=0"`
	UOM                 string  `json:"uom,omitempty" validate:"max=50"`
	ConversionFactor    float64 `json:"conversion_factor,omitempty" validate:"gte=0"`
	IncomingRate        float64 `json:"incoming_rate,omitempty" validate:"gte=0"`
	BOMNo               string  `json:"bom_no,omitempty" validate:"max=140"`
	SerialNo            string  `json:"serial_no,omitempty"`
	BatchNo             string  `json:"batch_no,omitempty" validate:"max=140"`
	ExpenseAccount      string  `json:"expense_account,omitempty" validate:"max=140"`
	CostCenter          string  `json:"cost_center,omitempty" validate:"max=140"`
	MaterialRequest     string  `json:"material_request,omitempty" validate:"max=140"`
	MaterialRequestItem string  `json:"material_request_item,omitempty" validate:"max=140"`
}

type CreateStockEntryRequest struct {
	Purpose           Purpose                 `json:"purpose" validate:"required"`
	PostedAt          time.Time               `json:"posted_at" validate:"required"`
	Company           string                  `json:"company,omitempty" validate:"max=140"`
	FiscalYear        string                  `json:"fiscal_year,omitempty" validate:"max=140"`
	ProductionOrder   string                  `json:"production_order,omitempty" validate:"max=140"`
	BOMNo             string                  `json:"bom_no,omitempty" validate:"max=140"`
	UseMultiLevelBOM  bool                    `json:"use_multi_level_bom,omitempty"`
	FGCompletedQty    float64                 `json:"fg_completed_qty,omitempty" validate:"gte=0"`
	FromWarehouse     string                  `json:"from_warehouse,omitempty" validate:"max=140"`
	ToWarehouse       string                  `json:"to_warehouse,omitempty" validate:"max=140"`
	DeliveryNoteNo    string                  `json:"delivery_note_no,omitempty" validate:"max=140"`
	SalesInvoiceNo    string                  `json:"sales_invoice_no,omitempty" validate:"max=140"`
	PurchaseReceiptNo string                  `json:"purchase_receipt_no,omitempty" validate:"max=140"`
	Lines             []StockEntryLineRequest `json:"lines" validate:"required,min=1,dive"`
}

type UpdateStockEntryRequest struct {
	PostedAt          time.Time               `json:"posted_at" validate:"required"`
	FiscalYear        string                  `json:"fiscal_year,omitempty" validate:"max=140"`
	ProductionOrder   string                  `json:"production_order,omitempty" validate:"max=140"`
	BOMNo             string                  `json:"bom_no,omitempty" validate:"max=140"`
	UseMultiLevelBOM  bool                    `json:"use_multi_level_bom,omitempty"`
	FGCompletedQty    float64                 `json:"fg_completed_qty,omitempty" validate:"gte=0"`
	FromWarehouse     string                  `json:"from_warehouse,omitempty" validate:"max=140"`
	ToWarehouse       string                  `json:"to_warehouse,omitempty" validate:"max=140"`
	DeliveryNoteNo    string                  `json:"delivery_note_no,omitempty" validate:"max=140"`
	SalesInvoiceNo    string                  `json:"sales_invoice_no,omitempty" validate:"max=140"`
	PurchaseReceiptNo string                  `json:"purchase_receipt_no,omitempty" validate:"max=140"`
	Lines             []StockEntryLineRequest `json:"lines" validate:"required,min=1,dive"`
}

type FetchItemsRequest struct {
	Purpose         Purpose `json:"purpose" validate:"required"`
	ProductionOrder string  `json:"production_order" validate:"required,max=140"`
	FGCompletedQty  float64 `json:"fg_completed_qty" validate:"required,gt=0"`
}

type StockEntryLineResponse struct {
	Idx              int     `json:"idx"`
	ItemCode         string  `json:"item_code"`
	ItemName         string  `json:"item_name,omitempty"`
	SourceWarehouse  string  `json:"source_warehouse,omitempty"`
	TargetWarehouse  string  `json:"target_warehouse,omitempty"`
	Qty              float64 `json:"qty"`
	UOM              string  `json:"uom,omitempty"`
	StockUOM         string  `json:"stock_uom,omitempty"`
	ConversionFactor float64 `json:"conversion_factor"`
	TransferQty      float64 `json:"transfer_qty"`
	IncomingRate     float64 `json:"incoming_rate"`
	ActualQty        float64 `json:"actual_qty"`
	Amount           float64 `json:"amount"`
	BOMNo            string  `json:"bom_no,omitempty"`
	SerialNo         string  `json:"serial_no,omitempty"`
	BatchNo          string  `json:"batch_no,omitempty"`
	ExpenseAccount   string  `json:"expense_account,omitempty"`
	CostCenter       string  `json:"cost_center,omitempty"`
}

type StockEntryResponse struct {
	Name              string                   `json:"name"`
	Purpose           Purpose                  `json:"purpose"`
	PostedAt          time.Time                `json:"posted_at"`
	Company           string                   `json:"company,omitempty"`
	FiscalYear        string                   `json:"fiscal_year,omitempty"`
	ProductionOrder   string                   `json:"production_order,omitempty"`
	BOMNo             string                   `json:"bom_no,omitempty"`
	UseMultiLevelBOM  bool                     `json:"use_multi_level_bom,omitempty"`
	FGCompletedQty    float64                  `json:"fg_completed_qty,omitempty"`
	FromWarehouse     string                   `json:"from_warehouse,omitempty"`
	ToWarehouse       string                   `json:"to_warehouse,omitempty"`
	DeliveryNoteNo    string                   `json:"delivery_note_no,omitempty"`
	SalesInvoiceNo    string                   `json:"sales_invoice_no,omitempty"`
	PurchaseReceiptNo string                   `json:"purchase_receipt_no,omitempty"`
	DocStatus         DocStatus                `json:"docstatus"`
	TotalAmount       float64                  `json:"total_amount"`
	Lines             []StockEntryLineResponse `json:"lines"`
	Notices           []Notice                 `json:"notices,omitempty"`
}

func (r CreateStockEntryRequest) toDomain() StockEntry {
	e := StockEntry{
		Purpose:           r.Purpose,
		PostedAt:          r.PostedAt,
		Company:           r.Company,
		FiscalYear:        r.FiscalYear,
		ProductionOrder:   r.ProductionOrder,
		BOMNo:             r.BOMNo,
		UseMultiLevelBOM:  r.UseMultiLevelBOM,
		FGCompletedQty:    r.FGCompletedQty,
		FromWarehouse:     r.FromWarehouse,
		ToWarehouse:       r.ToWarehouse,
		DeliveryNoteNo:    r.DeliveryNoteNo,
		SalesInvoiceNo:    r.SalesInvoiceNo,
		PurchaseReceiptNo: r.PurchaseReceiptNo,
	}
	e.Lines = linesToDomain(r.Lines)
	return e
}

func (r UpdateStockEntryRequest) apply(e *StockEntry) {
	e.PostedAt = r.PostedAt
	e.FiscalYear = r.FiscalYear
	e.ProductionOrder = r.ProductionOrder
	e.BOMNo = r.BOMNo
	e.UseMultiLevelBOM = r.UseMultiLevelBOM
	e.FGCompletedQty = r.FGCompletedQty
	e.FromWarehouse = r.FromWarehouse
	e.ToWarehouse = r.ToWarehouse
	e.DeliveryNoteNo = r.DeliveryNoteNo
	e.SalesInvoiceNo = r.SalesInvoiceNo
	e.PurchaseReceiptNo = r.PurchaseReceiptNo
	e.Lines = linesToDomain(r.Lines)
}

func linesToDomain(reqs []StockEntryLineRequest) []StockEntryLine {
	lines := make([]StockEntryLine, len(reqs))
	for i, lr := range reqs {
		lines[i] = StockEntryLine{
			Idx:                 i + 1,
			ItemCode:            lr.ItemCode,
			SourceWarehouse:     lr.SourceWarehouse,
			TargetWarehouse:     lr.TargetWarehouse,
			Qty:                 lr.Qty,
			UOM:                 lr.UOM,
			ConversionFactor:    lr.ConversionFactor,
			IncomingRate:        lr.IncomingRate,
			BOMNo:               lr.BOMNo,
			SerialNo:            lr.SerialNo,
			BatchNo:             lr.BatchNo,
			ExpenseAccount:      lr.ExpenseAccount,
			CostCenter:          lr.CostCenter,
			MaterialRequest:     lr.MaterialRequest,
			MaterialRequestItem: lr.MaterialRequestItem,
		}
	}
	return lines
}

func toResponse(e StockEntry, notices []Notice) StockEntryResponse {
	resp := StockEntryResponse{
		Name:              e.Name,
		Purpose:           e.Purpose,
		PostedAt:          e.PostedAt,
		Company:           e.Company,
		FiscalYear:        e.FiscalYear,
		ProductionOrder:   e.ProductionOrder,
		BOMNo:             e.BOMNo,
		UseMultiLevelBOM:  e.UseMultiLevelBOM,
		FGCompletedQty:    e.FGCompletedQty,
		FromWarehouse:     e.FromWarehouse,
		ToWarehouse:       e.ToWarehouse,
		DeliveryNoteNo:    e.DeliveryNoteNo,
		SalesInvoiceNo:    e.SalesInvoiceNo,
		PurchaseReceiptNo: e.PurchaseReceiptNo,
		DocStatus:         e.DocStatus,
		TotalAmount:       e.TotalAmount,
		Notices:           notices,
	}
	resp.Lines = make([]StockEntryLineResponse, len(e.Lines))
	for i, l := range e.Lines {
		resp.Lines[i] = StockEntryLineResponse{
			Idx:              l.Idx,
			ItemCode:         l.ItemCode,
			ItemName:         l.ItemName,
			SourceWarehouse:  l.SourceWarehouse,
			TargetWarehouse:  l.TargetWarehouse,
			Qty:              l.Qty,
			UOM:              l.UOM,
			StockUOM:         l.StockUOM,
			ConversionFactor: l.ConversionFactor,
			TransferQty:      l.TransferQty,
			IncomingRate:     l.IncomingRate,
			ActualQty:        l.ActualQty,
			Amount:           l.Amount,
			BOMNo:            l.BOMNo,
			SerialNo:         l.SerialNo,
			BatchNo:          l.BatchNo,
			ExpenseAccount:   l.ExpenseAccount,
			CostCenter:       l.CostCenter,
		}
	}
	return resp
}

type ReferenceItemResponse struct {
	ItemCode string  `json:"item_code"`
	Qty      float64 `json:"qty"`
}

type ReferenceDetailsResponse struct {
	DocType   RefDocType              `json:"doc_type"`
	Name      string                  `json:"name"`
	PostedAt  time.Time               `json:"posted_at"`
	Party     string                  `json:"party,omitempty"`
	PartyName string                  `json:"party_name,omitempty"`
	Items     []ReferenceItemResponse `json:"items"`
}

func toReferenceResponse(doc ReferenceDoc, party PartyDetails) ReferenceDetailsResponse {
	resp := ReferenceDetailsResponse{
		DocType:   doc.DocType,
		Name:      doc.Name,
		PostedAt:  doc.PostedAt,
		Party:     party.Party,
		PartyName: party.Name,
	}
	resp.Items = make([]ReferenceItemResponse, len(doc.Items))
	for i, it := range doc.Items {
		resp.Items[i] = ReferenceItemResponse{ItemCode: it.ItemCode, Qty: it.Qty}
	}
	return resp
}
