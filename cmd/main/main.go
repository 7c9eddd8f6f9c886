package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"tso-admin/internal/api"
	"tso-admin/internal/cache"
	"tso-admin/internal/config"
	"tso-admin/internal/database"
	"tso-admin/internal/kafka"
	"tso-admin/internal/metrics"
	"tso-admin/internal/tracing"
)

func main() {
	cfg := config.Get()

	// Инициализация трассировки и метрик
	shutdownTracer := tracing.InitTracerProvider("tso-admin", cfg.Jaeger.URL)
	defer shutdownTracer()
	metrics.Init()

	// Инициализация хранилища
	storage, err := database.New(cfg.Postgres.URL, "./internal/database/migrations")
	if err != nil {
		log.Fatalf("Ошибка инициализации хранилища: %v", err)
	}
	defer storage.Close()

	// Инициализация кэша
	orderCache := cache.NewLRUCache(cfg.Cache.Size)
	if err := cache.WarmUp(context.Background(), storage, orderCache); err != nil {
		log.Printf("Ошибка при прогреве кэша: %v", err)
	}

	// Публикация событий заказов (опционально)
	var events kafka.Publisher
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka)
		defer producer.Close()
		events = producer
	}

	// Запуск HTTP-сервера
	server := api.NewServer(cfg.HTTP.Port, storage, orderCache, events)
	go func() {
		if err := server.Run(); err != nil {
			log.Fatalf("Ошибка запуска HTTP-сервера: %v", err)
		}
	}()

	// Ожидание сигнала для корректного завершения работы
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	<-shutdown

	log.Println("Сервис останавливается...")
}
