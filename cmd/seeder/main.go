package main

import (
	"context"
	"flag"
	"log"

	"tso-admin/internal/config"
	"tso-admin/internal/database"
	"tso-admin/internal/generator"
	"tso-admin/internal/model"
	"tso-admin/internal/validator"
)

func main() {
	count := flag.Int("n", 10, "количество демо-заказов")
	flag.Parse()

	cfg := config.Get()
	storage, err := database.New(cfg.Postgres.URL, "./internal/database/migrations")
	if err != nil {
		log.Fatalf("Ошибка инициализации хранилища: %v", err)
	}
	defer storage.Close()

	ctx := context.Background()
	created := 0
	for i := 0; i < *count; i++ {
		in := generator.NewOrderInput()
		// Демо-заказы проходят те же проверки, что и заказы из формы.
		if fieldErrs := validator.ValidateOrderInput(&in); fieldErrs != nil {
			log.Printf("Сгенерирован невалидный заказ, пропуск: %v", fieldErrs)
			continue
		}

		status, _ := model.ParseStatus(in.Status)
		order := in.ToOrder(status)
		if err := storage.CreateOrder(ctx, &order); err != nil {
			log.Printf("Ошибка создания заказа: %v", err)
			continue
		}

		created++
		log.Printf("Создан заказ %s: %s %s, %s, %d чел., итого %.2f",
			order.ID, order.FirstName, order.LastName, order.Destination, order.Persons, order.Total)
	}

	log.Printf("Готово. Создано демо-заказов: %d из %d.", created, *count)
}
