package model

import "time"

// Assignment описывает период работы сотрудника в отделе.
type Assignment struct {
	Division    Role       `json:"division"`
	Affectation string     `json:"affectation"`
	StartDate   time.Time  `json:"startDate"`
	EndDate     *time.Time `json:"endDate"`
}

// Personnel представляет карточку сотрудника с историей назначений.
type Personnel struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Division    Role         `json:"division"`
	Affectation string       `json:"affectation"`
	History     []Assignment `json:"history"`
}

// Clone возвращает глубокую копию карточки.
func (p *Personnel) Clone() *Personnel {
	if p == nil {
		return nil
	}
	c := *p
	if p.History != nil {
		c.History = make([]Assignment, len(p.History))
		for i, a := range p.History {
			c.History[i] = a
			c.History[i].EndDate = cloneTime(a.EndDate)
		}
	}
	return &c
}

// PersonnelInput содержит данные для создания или изменения карточки.
type PersonnelInput struct {
	Name        string `json:"name"`
	Division    Role   `json:"division"`
	Affectation string `json:"affectation"`
}
