package model

import "time"

// ResourceOrderStatus описывает этап заявки на ресурсы.
type ResourceOrderStatus string

const (
	ResourceOrderPending   ResourceOrderStatus = "En attente"
	ResourceOrderDelivered ResourceOrderStatus = "Livré"
	ResourceOrderReceived  ResourceOrderStatus = "Reçu"
)

// ResourceOrderStatuses перечисляет все статусы заявки.
var ResourceOrderStatuses = []ResourceOrderStatus{
	ResourceOrderPending,
	ResourceOrderDelivered,
	ResourceOrderReceived,
}

// ResourceOrder представляет заявку на расходные материалы для отдела.
type ResourceOrder struct {
	ID              string              `json:"id"`
	ResourceType    string              `json:"resourceType"`
	Quantity        int                 `json:"quantity"`
	Unit            string              `json:"unit"`
	Description     string              `json:"description,omitempty"`
	Notes           string              `json:"notes,omitempty"`
	RequestedBy     string              `json:"requestedBy"`
	RequestedByRole Role                `json:"requestedByRole"`
	TargetDivision  Role                `json:"targetDivision"`
	CreatedAt       time.Time           `json:"createdAt"`
	Status          ResourceOrderStatus `json:"status"`
	DeliveredBy     string              `json:"deliveredBy,omitempty"`
	DeliveredAt     *time.Time          `json:"deliveredAt,omitempty"`
	ReceivedBy      string              `json:"receivedBy,omitempty"`
	ReceivedAt      *time.Time          `json:"receivedAt,omitempty"`
}

// Clone возвращает копию заявки.
func (o *ResourceOrder) Clone() *ResourceOrder {
	if o == nil {
		return nil
	}
	c := *o
	c.DeliveredAt = cloneTime(o.DeliveredAt)
	c.ReceivedAt = cloneTime(o.ReceivedAt)
	return &c
}

// NewResourceOrder содержит входные данные заявки. Роль заявителя берётся из
// аутентифицированного исполнителя и в запросе не принимается.
type NewResourceOrder struct {
	ResourceType   string `json:"resourceType"`
	Quantity       int    `json:"quantity"`
	Unit           string `json:"unit"`
	TargetDivision Role   `json:"targetDivision"`
	Description    string `json:"description,omitempty"`
	Notes          string `json:"notes,omitempty"`
}

// ResourceOrderFilter ограничивает выборку заявок.
type ResourceOrderFilter struct {
	RequestedBy    string
	TargetDivision Role
}

// Match сообщает, подходит ли заявка под фильтр.
func (f ResourceOrderFilter) Match(o ResourceOrder) bool {
	if f.RequestedBy != "" && o.RequestedBy != f.RequestedBy {
		return false
	}
	if f.TargetDivision != "" && o.TargetDivision != f.TargetDivision {
		return false
	}
	return true
}

// ResourceOrderPage содержит страницу заявок и их общее число.
type ResourceOrderPage struct {
	Items []ResourceOrder `json:"items"`
	Total int             `json:"total"`
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
