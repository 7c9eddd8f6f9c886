package model

import (
	"fmt"
	"math"
)

// Order представляет заказ тура, как он хранится в таблице orders.
// Статус хранится в локализованном виде ("Оплачено" / "Не оплачено"),
// в ответах API отдается как есть.
type Order struct {
	ID            string  `json:"id" db:"id"`
	FirstName     string  `json:"first_name" db:"first_name"`
	LastName      string  `json:"last_name" db:"last_name"`
	Destination   string  `json:"destination" db:"destination"`
	DepartureDate Date    `json:"departure_date" db:"departure_date"`
	ArrivalDate   Date    `json:"arrival_date" db:"arrival_date"`
	Persons       int     `json:"persons" db:"persons"`
	Price         float64 `json:"price" db:"price"`
	Total         float64 `json:"total" db:"total"`
	Status        Status  `json:"status" db:"status"`
}

// OrderInput — кандидат заказа из тела запроса: все поля заказа, кроме
// id и total. Поле id в теле запроса игнорируется, total вычисляется
// на сервере. Даты и статус проверяются отдельно в пакете validator.
type OrderInput struct {
	FirstName     string  `json:"first_name" validate:"min=2,max=30,letters"`
	LastName      string  `json:"last_name" validate:"min=2,max=30,letters"`
	Destination   string  `json:"destination" validate:"min=2,max=50"`
	DepartureDate Date    `json:"departure_date" validate:"-"`
	ArrivalDate   Date    `json:"arrival_date" validate:"-"`
	Persons       int     `json:"persons" validate:"gte=1,lte=10"`
	Price         float64 `json:"price" validate:"gt=0,money"`
	Status        string  `json:"status" validate:"-"`
}

// Total вычисляет итоговую стоимость: persons * price, округление до копеек.
func (in *OrderInput) Total() float64 {
	return math.Round(float64(in.Persons)*in.Price*100) / 100
}

// ToOrder собирает заказ из кандидата с уже нормализованным статусом.
// Поле ID остается пустым: его присваивает хранилище при создании,
// при обновлении его задает вызывающая сторона.
func (in *OrderInput) ToOrder(status Status) Order {
	return Order{
		FirstName:     in.FirstName,
		LastName:      in.LastName,
		Destination:   in.Destination,
		DepartureDate: in.DepartureDate,
		ArrivalDate:   in.ArrivalDate,
		Persons:       in.Persons,
		Price:         in.Price,
		Total:         in.Total(),
		Status:        status,
	}
}

// FormatID собирает отображаемый идентификатор заказа вида "<seq>/<YY>-FD",
// где YY — две последние цифры года.
func FormatID(seq, year int) string {
	return fmt.Sprintf("%d/%02d-FD", seq, year%100)
}
