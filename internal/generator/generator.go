package generator

import (
	"math"
	"time"

	"github.com/brianvoe/gofakeit/v6"

	"tso-admin/internal/model"
)

// Справочники для демо-данных.
var (
	firstNames = []string{"Иван", "Петр", "Анна", "Мария", "Алексей", "Ольга", "Дмитрий", "Елена"}
	lastNames  = []string{"Иванов", "Петров", "Сидорова", "Кузнецова", "Смирнов", "Васильева"}

	destinations = []string{
		"Москва", "Сочи", "Калининград", "Казань", "Санкт-Петербург",
		"Анталья", "Стамбул", "Дубай", "Пхукет",
	}
)

// NewOrderInput создает случайный, но валидный кандидат заказа для
// наполнения демо-данными. Даты всегда в будущем, цена с копейками.
func NewOrderInput() model.OrderInput {
	departure := time.Now().AddDate(0, 0, gofakeit.Number(1, 60))
	arrival := departure.AddDate(0, 0, gofakeit.Number(3, 14))

	price := float64(gofakeit.Number(15000, 250000)) + float64(gofakeit.Number(0, 99))/100

	return model.OrderInput{
		FirstName:     gofakeit.RandomString(firstNames),
		LastName:      gofakeit.RandomString(lastNames),
		Destination:   gofakeit.RandomString(destinations),
		DepartureDate: model.NewDate(departure.Year(), departure.Month(), departure.Day()),
		ArrivalDate:   model.NewDate(arrival.Year(), arrival.Month(), arrival.Day()),
		Persons:       gofakeit.Number(1, 10),
		Price:         math.Round(price*100) / 100,
		Status:        gofakeit.RandomString([]string{"Paid", "Pending"}),
	}
}
