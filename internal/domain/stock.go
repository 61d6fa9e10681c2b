// Package domain 定义库存一致性核心的业务领域模型和核心业务规则。
package domain

import "time"

// 库存核心的默认参数。
const (
	// DefaultLowStockThreshold 默认低库存阈值，库存低于该值时产生告警
	DefaultLowStockThreshold = 5
	// LargeQuantityThreshold 单次请求数量超过该值时附加"大数量"警告
	LargeQuantityThreshold = 10
	// ReservationTTL 预留记录的默认有效期
	ReservationTTL = 15 * time.Minute
)

// Product 表示商品库存记录（外部数据存储的行的子集）
type Product struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	SKU        string    `json:"sku"`
	Price      float64   `json:"price"`
	StockCount int       `json:"stock_count"` // 当前库存，任何时刻不允许为负
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"` // 每次库存变更时刷新
}

// IsOutOfStock 判断是否售罄
func (p *Product) IsOutOfStock() bool {
	return p.StockCount == 0
}

// IsLowStock 判断是否低于指定阈值
func (p *Product) IsLowStock(threshold int) bool {
	return p.StockCount < threshold
}

// StockValidationResult 表示一次库存校验的结果，按调用临时构造，不持久化
type StockValidationResult struct {
	Available         bool      `json:"available"`
	CurrentStock      int       `json:"current_stock"`
	RequestedQuantity int       `json:"requested_quantity"`
	ProductID         int64     `json:"product_id"`
	Message           string    `json:"message"`
	Warnings          []string  `json:"warnings,omitempty"`
	Timestamp         time.Time `json:"timestamp"`
}

// StockChangeReason 库存变动原因
type StockChangeReason string

const (
	ReasonSale        StockChangeReason = "sale"
	ReasonRestock     StockChangeReason = "restock"
	ReasonAdjustment  StockChangeReason = "adjustment"
	ReasonReservation StockChangeReason = "reservation"
	ReasonReturn      StockChangeReason = "return"
	ReasonDamaged     StockChangeReason = "damaged"
)

// Valid 判断变动原因是否为已知枚举值
func (r StockChangeReason) Valid() bool {
	switch r {
	case ReasonSale, ReasonRestock, ReasonAdjustment, ReasonReservation, ReasonReturn, ReasonDamaged:
		return true
	}
	return false
}

// StockChange 表示一次库存变动记录。
// 不变式：NewStock = clamp(PreviousStock + ChangeAmount, 0, +∞)；
// 扣减操作在 PreviousStock < |ChangeAmount| 时必须拒绝而非截断，
// 公式中的截断仅作为通过校验之后的防御性兜底。
type StockChange struct {
	ProductID     int64             `json:"product_id"`
	PreviousStock int               `json:"previous_stock"`
	NewStock      int               `json:"new_stock"`
	ChangeAmount  int               `json:"change_amount"` // 有符号，扣减为负
	Reason        StockChangeReason `json:"reason"`
	UserID        *int64            `json:"user_id,omitempty"`
	OrderID       *int64            `json:"order_id,omitempty"`
	Timestamp     time.Time         `json:"timestamp"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// ReservationStatus 预留状态
type ReservationStatus string

const (
	ReservationActive   ReservationStatus = "active"
	ReservationExpired  ReservationStatus = "expired"
	ReservationConsumed ReservationStatus = "consumed"
)

// StockReservation 表示一次建议性的库存预留。
// 本核心不做后台过期清扫，ExpiresAt 仅作为附加元数据，不参与并发扣减的约束。
type StockReservation struct {
	ID         string            `json:"id"`
	ProductID  int64             `json:"product_id"`
	UserID     int64             `json:"user_id"`
	Quantity   int               `json:"quantity"`
	ReservedAt time.Time         `json:"reserved_at"`
	ExpiresAt  time.Time         `json:"expires_at"` // ReservedAt + ReservationTTL
	Status     ReservationStatus `json:"status"`
}

// IsExpired 按当前时间判断预留是否已过期（仅供读取方惰性判断）
func (r *StockReservation) IsExpired(now time.Time) bool {
	return r.Status == ReservationActive && now.After(r.ExpiresAt)
}

// AlertSeverity 低库存告警级别
type AlertSeverity string

const (
	SeverityWarning    AlertSeverity = "warning"
	SeverityCritical   AlertSeverity = "critical"
	SeverityOutOfStock AlertSeverity = "out_of_stock"
)

// SeverityForStock 按库存数量计算告警级别：
// 0 -> out_of_stock；<=2 -> critical；其余（< threshold）-> warning。
func SeverityForStock(stock int) AlertSeverity {
	switch {
	case stock == 0:
		return SeverityOutOfStock
	case stock <= 2:
		return SeverityCritical
	default:
		return SeverityWarning
	}
}

// LowStockAlert 表示一条派生的低库存告警，按查询计算，不落库
type LowStockAlert struct {
	ProductID     int64         `json:"product_id"`
	ProductName   string        `json:"product_name"`
	CurrentStock  int           `json:"current_stock"`
	Threshold     int           `json:"threshold"`
	Severity      AlertSeverity `json:"severity"`
	LastRestockAt *time.Time    `json:"last_restock_at,omitempty"`
}

// ValidationContext 携带校验操作的调用方上下文，仅用于审计日志
type ValidationContext struct {
	UserID *int64 `json:"user_id,omitempty"`
	Source string `json:"source,omitempty"` // 例如 cart, checkout, admin
}

// MutationContext 携带库存变动操作的上下文
type MutationContext struct {
	Reason      StockChangeReason `json:"reason"`
	UserID      *int64            `json:"user_id,omitempty"`
	OrderID     *int64            `json:"order_id,omitempty"`
	BatchNumber string            `json:"batch_number,omitempty"` // 入库批次号（补货）
	Supplier    string            `json:"supplier,omitempty"`     // 供应商（补货）
}

// StockItem 批量校验的单个条目
type StockItem struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

// BulkValidationResult 批量校验结果。批量操作本身从不失败，
// 所有单项异常都被捕获并转换为 Errors 中的条目。
type BulkValidationResult struct {
	Valid   bool                     `json:"valid"` // len(Errors) == 0
	Results []*StockValidationResult `json:"results"`
	Errors  []string                 `json:"errors"`
}
