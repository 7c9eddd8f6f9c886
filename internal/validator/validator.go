package validator

import (
	"errors"
	"math"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"tso-admin/internal/model"
)

// FieldErrors содержит сообщения об ошибках по полям формы заказа.
// Ключи совпадают с json-именами полей, чтобы клиент мог подсветить
// конкретное поле.
type FieldErrors map[string]string

func (e FieldErrors) Error() string {
	fields := make([]string, 0, len(e))
	for field := range e {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return "невалидные поля: " + strings.Join(fields, ", ")
}

var (
	validate *validator.Validate
	once     sync.Once
)

// lettersRe — только кириллица или латиница, без цифр, пробелов и дефисов.
var lettersRe = regexp.MustCompile(`^[А-ЯЁа-яёA-Za-z]+$`)

// getInstance возвращает синглтон-экземпляр валидатора с доменными правилами.
func getInstance() *validator.Validate {
	once.Do(func() {
		validate = validator.New()
		_ = validate.RegisterValidation("letters", func(fl validator.FieldLevel) bool {
			return lettersRe.MatchString(fl.Field().String())
		})
		// money: не более двух знаков после запятой. Сравнение через
		// округление до копеек: абсолютный допуск отбраковывал бы
		// корректные большие цены из-за погрешности float64.
		_ = validate.RegisterValidation("money", func(fl validator.FieldLevel) bool {
			price := fl.Field().Float()
			return math.Round(price*100)/100 == price
		})
	})
	return validate
}

// Сообщения в формулировках формы заказа.
var fieldMessages = map[string]string{
	"first_name":     "Имя должно содержать 2-30 букв",
	"last_name":      "Фамилия должна содержать 2-30 букв",
	"destination":    "Направление должно содержать 2-50 символов",
	"departure_date": "Дата вылета должна быть не раньше сегодняшнего дня",
	"arrival_date":   "Дата прилета должна быть позже даты вылета",
	"persons":        "Количество человек должно быть от 1 до 10",
	"price":          "Цена должна быть положительным числом (макс. 2 знака после запятой)",
	"status":         "Пожалуйста, выберите статус",
}

// Соответствие Go-полей OrderInput json-именам для перевода ошибок тегов.
var fieldNames = map[string]string{
	"FirstName":   "first_name",
	"LastName":    "last_name",
	"Destination": "destination",
	"Persons":     "persons",
	"Price":       "price",
}

// ValidateOrderInput проверяет кандидат заказа: теги структуры, затем
// даты и статус, которые не выражаются тегами. Возвращает nil, если
// все поля корректны.
func ValidateOrderInput(in *model.OrderInput) FieldErrors {
	errs := FieldErrors{}

	if err := getInstance().Struct(in); err != nil {
		var vErrs validator.ValidationErrors
		if errors.As(err, &vErrs) {
			for _, fe := range vErrs {
				if name, ok := fieldNames[fe.StructField()]; ok {
					errs[name] = fieldMessages[name]
				}
			}
		}
	}

	if in.DepartureDate.IsZero() || in.DepartureDate.Before(model.Today().Time) {
		errs["departure_date"] = fieldMessages["departure_date"]
	}
	if in.ArrivalDate.IsZero() || !in.ArrivalDate.After(in.DepartureDate.Time) {
		errs["arrival_date"] = fieldMessages["arrival_date"]
	}
	if _, ok := model.ParseStatus(in.Status); !ok {
		errs["status"] = fieldMessages["status"]
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}
