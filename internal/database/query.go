package database

import (
	"fmt"
	"strings"

	"tso-admin/internal/model"
)

// Колонки, по которым разрешена сортировка. Значение вне списка молча
// заменяется сортировкой по id — это единственная защита, которая нужна
// идентификаторам: в плейсхолдеры они не попадают.
var sortColumns = map[string]struct{}{
	"id":             {},
	"first_name":     {},
	"last_name":      {},
	"destination":    {},
	"departure_date": {},
	"arrival_date":   {},
	"persons":        {},
	"price":          {},
	"total":          {},
	"status":         {},
}

// Колонки, по которым ищется подстрока, если запрос не является
// синонимом статуса.
var searchColumns = []string{"first_name", "last_name", "destination", "id"}

const selectOrders = `SELECT id, first_name, last_name, destination, departure_date, arrival_date, persons, price, total, status FROM orders`

// likeEscaper экранирует метасимволы LIKE, чтобы "100%" искал литеральную
// подстроку "100%", а не все строки подряд.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// ListQuery описывает параметры выборки заказов: поисковая строка,
// колонка сортировки и направление. Все три поля приходят от клиента
// без предварительной очистки.
type ListQuery struct {
	Search string
	Sort   string
	Dir    string
}

// SortColumn возвращает колонку сортировки после проверки по списку
// разрешенных.
func (q ListQuery) SortColumn() string {
	if _, ok := sortColumns[q.Sort]; ok {
		return q.Sort
	}
	return "id"
}

// Direction возвращает ASC или DESC (без учета регистра); все прочее
// заменяется на ASC.
func (q ListQuery) Direction() string {
	if strings.EqualFold(q.Dir, "DESC") {
		return "DESC"
	}
	return "ASC"
}

// orderExpr возвращает выражение ORDER BY. Для id сортировка идет по
// числовой части до разделителя "/": иначе "9/25-FD" оказался бы
// после "10/25-FD".
func (q ListQuery) orderExpr() string {
	column := q.SortColumn()
	if column == "id" {
		column = "(split_part(id, '/', 1))::int"
	}
	return column + " " + q.Direction()
}

// BuildSelect собирает SQL-запрос выборки заказов. Пользовательские
// значения попадают только в плейсхолдеры; идентификаторы подставляются
// в текст запроса после проверки по фиксированному списку.
func (q ListQuery) BuildSelect() (string, []interface{}) {
	var sb strings.Builder
	sb.WriteString(selectOrders)

	var args []interface{}
	search := strings.TrimSpace(q.Search)
	if search != "" {
		if status, ok := model.ParseStatus(search); ok {
			// Синоним статуса — точное совпадение, подстроки не ищем.
			sb.WriteString(" WHERE status = $1")
			args = append(args, string(status))
		} else {
			pattern := "%" + likeEscaper.Replace(search) + "%"
			conditions := make([]string, 0, len(searchColumns))
			for i, column := range searchColumns {
				conditions = append(conditions, fmt.Sprintf("%s ILIKE $%d", column, i+1))
				args = append(args, pattern)
			}
			sb.WriteString(" WHERE (" + strings.Join(conditions, " OR ") + ")")
		}
	}

	sb.WriteString(" ORDER BY " + q.orderExpr())
	return sb.String(), args
}
