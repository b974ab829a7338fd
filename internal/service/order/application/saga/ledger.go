package saga

import "storefront/internal/service/order/domain"

// Outcome 是一次预占尝试的结果
type Outcome int

const (
	OutcomeSuccess Outcome = iota + 1
	OutcomeInsufficientStock
	OutcomeConflict
	OutcomeNotFound
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeInsufficientStock:
		return "insufficient_stock"
	case OutcomeConflict:
		return "conflict"
	case OutcomeNotFound:
		return "not_found"
	default:
		return "error"
	}
}

// Attempt 记录对一个商品的预占尝试。Observed 是写入前读到的库存。
type Attempt struct {
	ProductID string
	Requested int
	Observed  int
	Outcome   Outcome
	Retries   int
}

// NewStock 是预占成功后写入的库存值
func (a Attempt) NewStock() int {
	return a.Observed - a.Requested
}

// Ledger 是补偿账本: 只追加的成功预占列表，准确对应当前已作用在存储上的扣减。
type Ledger []Attempt

// Append 返回追加了 a 的新账本。只接受成功的预占。
func (l Ledger) Append(a Attempt) Ledger {
	if a.Outcome != OutcomeSuccess {
		return l
	}
	return append(l, a)
}

// PendingOrder 只存在于一次 CreateOrder 调用的内存中。
type PendingOrder struct {
	Items        []domain.LineItem
	Reservations Ledger
}
