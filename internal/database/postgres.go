package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"tso-admin/internal/metrics"
	"tso-admin/internal/model"
)

//go:generate mockgen -source=postgres.go -destination=./mocks/storage_mock.go -package=mocks Storage

var (
	// ErrOrderNotFound возвращается, когда заказ с указанным id отсутствует.
	ErrOrderNotFound = errors.New("заказ не найден")
	// ErrIDConflict возвращается, когда присвоение номера заказа дважды
	// подряд попало в дубликат.
	ErrIDConflict = errors.New("конфликт присвоения номера заказа")
)

// Storage определяет интерфейс для работы с хранилищем заказов.
type Storage interface {
	ListOrders(ctx context.Context, q ListQuery) ([]model.Order, error)
	GetOrderByID(ctx context.Context, id string) (*model.Order, error)
	NextOrderID(ctx context.Context) (string, error)
	CreateOrder(ctx context.Context, order *model.Order) error
	UpdateOrder(ctx context.Context, order *model.Order) error
	DeleteOrder(ctx context.Context, id string) error
	Close() error
}

// postgresStorage обеспечивает взаимодействие с базой данных PostgreSQL.
// Это конкретная реализация интерфейса Storage.
type postgresStorage struct {
	db     *sqlx.DB
	tracer trace.Tracer
}

// New создает подключение к БД, применяет миграции и возвращает
// экземпляр, реализующий интерфейс Storage.
func New(dbURL, migrationsPath string) (Storage, error) {
	db, err := sqlx.Connect("postgres", dbURL)
	if err != nil {
		return nil, fmt.Errorf("не удалось подключиться к БД: %w", err)
	}

	if err := runMigrations(dbURL, migrationsPath); err != nil {
		return nil, fmt.Errorf("ошибка применения миграций: %w", err)
	}

	return &postgresStorage{
		db:     db,
		tracer: otel.Tracer("postgres-storage"),
	}, nil
}

// runMigrations выполняет миграции БД до последней версии.
func runMigrations(dbURL, migrationsPath string) error {
	log.Println("Поиск и применение миграций...")

	m, err := migrate.New(fmt.Sprintf("file://%s", migrationsPath), dbURL)
	if err != nil {
		return fmt.Errorf("не удалось создать экземпляр миграции: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("не удалось выполнить миграции: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil {
		return fmt.Errorf("не удалось получить версию миграции: %w", err)
	}

	if dirty {
		log.Printf("БД в 'грязном' состоянии (dirty). Версия: %d. Рекомендуется проверка.", version)
	}

	log.Printf("Миграции успешно применены. Текущая версия БД: %d", version)
	return nil
}

// ListOrders выполняет выборку заказов с поиском и сортировкой.
func (s *postgresStorage) ListOrders(ctx context.Context, q ListQuery) ([]model.Order, error) {
	ctx, span := s.tracer.Start(ctx, "DB.ListOrders")
	defer span.End()

	query, args := q.BuildSelect()
	orders := []model.Order{}
	if err := s.db.SelectContext(ctx, &orders, query, args...); err != nil {
		metrics.DBErrors.WithLabelValues("list_orders").Inc()
		return nil, fmt.Errorf("ошибка выборки заказов: %w", err)
	}
	return orders, nil
}

// GetOrderByID извлекает заказ по его отображаемому id.
func (s *postgresStorage) GetOrderByID(ctx context.Context, id string) (*model.Order, error) {
	ctx, span := s.tracer.Start(ctx, "DB.GetOrderByID")
	defer span.End()

	var order model.Order
	if err := s.db.GetContext(ctx, &order, selectOrders+` WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		metrics.DBErrors.WithLabelValues("get_order").Inc()
		return nil, fmt.Errorf("не удалось получить заказ: %w", err)
	}
	return &order, nil
}

// NextOrderID возвращает следующий отображаемый id, не резервируя его.
// Используется формой для предварительного показа номера.
func (s *postgresStorage) NextOrderID(ctx context.Context) (string, error) {
	ctx, span := s.tracer.Start(ctx, "DB.NextOrderID")
	defer span.End()

	year := time.Now().Year() % 100
	seq, err := maxSequence(ctx, s.db, year)
	if err != nil {
		metrics.DBErrors.WithLabelValues("next_id").Inc()
		return "", fmt.Errorf("ошибка вычисления номера заказа: %w", err)
	}
	return model.FormatID(seq+1, year), nil
}

// maxSequence возвращает максимальный порядковый номер заказа для года YY
// (0, если заказов за этот год еще нет).
func maxSequence(ctx context.Context, q sqlx.QueryerContext, year int) (int, error) {
	var seq int
	query := `SELECT COALESCE(MAX((split_part(id, '/', 1))::int), 0) FROM orders WHERE id LIKE $1`
	if err := sqlx.GetContext(ctx, q, &seq, query, fmt.Sprintf("%%/%02d-FD", year)); err != nil {
		return 0, err
	}
	return seq, nil
}

// CreateOrder присваивает заказу следующий номер за текущий год и вставляет
// строку. Номер считается в той же транзакции, что и вставка: параллельная
// вставка с тем же номером нарушит первичный ключ, и тогда выполняется
// одна повторная попытка уже со свежим номером.
func (s *postgresStorage) CreateOrder(ctx context.Context, order *model.Order) error {
	ctx, span := s.tracer.Start(ctx, "DB.CreateOrder")
	defer span.End()

	const attempts = 2
	for i := 0; i < attempts; i++ {
		err := s.insertOrder(ctx, order)
		if err == nil {
			return nil
		}
		if !isUniqueViolation(err) {
			metrics.DBErrors.WithLabelValues("create_order").Inc()
			return err
		}
		log.Printf("Дубликат id %s при вставке заказа, повторная попытка.", order.ID)
	}
	return ErrIDConflict
}

// insertOrder — одна попытка присвоить номер и вставить заказ.
func (s *postgresStorage) insertOrder(ctx context.Context, order *model.Order) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		} else if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				log.Printf("Ошибка отката транзакции (после ошибки: %v): %v", err, rbErr)
			}
		}
	}()

	year := time.Now().Year() % 100
	var seq int
	if seq, err = maxSequence(ctx, tx, year); err != nil {
		return fmt.Errorf("ошибка вычисления номера заказа: %w", err)
	}
	order.ID = model.FormatID(seq+1, year)

	insert := `INSERT INTO orders (id, first_name, last_name, destination, departure_date, arrival_date, persons, price, total, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	if _, err = tx.ExecContext(ctx, insert,
		order.ID, order.FirstName, order.LastName, order.Destination,
		order.DepartureDate, order.ArrivalDate, order.Persons,
		order.Price, order.Total, order.Status); err != nil {
		return fmt.Errorf("ошибка вставки заказа: %w", err)
	}

	err = tx.Commit()
	return err
}

// isUniqueViolation распознает нарушение уникальности (код PostgreSQL 23505).
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// UpdateOrder перезаписывает все поля заказа, кроме id. Отсутствие строки
// с таким id — ошибка ErrOrderNotFound, а не тихий успех.
func (s *postgresStorage) UpdateOrder(ctx context.Context, order *model.Order) error {
	ctx, span := s.tracer.Start(ctx, "DB.UpdateOrder")
	defer span.End()

	query := `UPDATE orders SET first_name = $1, last_name = $2, destination = $3, departure_date = $4,
		arrival_date = $5, persons = $6, price = $7, total = $8, status = $9 WHERE id = $10`
	result, err := s.db.ExecContext(ctx, query,
		order.FirstName, order.LastName, order.Destination,
		order.DepartureDate, order.ArrivalDate, order.Persons,
		order.Price, order.Total, order.Status, order.ID)
	if err != nil {
		metrics.DBErrors.WithLabelValues("update_order").Inc()
		return fmt.Errorf("ошибка обновления заказа: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("ошибка проверки результата обновления: %w", err)
	}
	if affected == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// DeleteOrder удаляет заказ. Повторное удаление того же id возвращает
// ErrOrderNotFound.
func (s *postgresStorage) DeleteOrder(ctx context.Context, id string) error {
	ctx, span := s.tracer.Start(ctx, "DB.DeleteOrder")
	defer span.End()

	result, err := s.db.ExecContext(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		metrics.DBErrors.WithLabelValues("delete_order").Inc()
		return fmt.Errorf("ошибка удаления заказа: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("ошибка проверки результата удаления: %w", err)
	}
	if affected == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// Close закрывает соединение с БД.
func (s *postgresStorage) Close() error {
	return s.db.Close()
}
