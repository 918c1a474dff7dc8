package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/iudanet/doccollab/internal/models"
)

// IDPattern определяет допустимый формат идентификаторов документов, акторов, сессий
// Только латинские буквы (a-z, A-Z), цифры (0-9), дефис (-) и нижнее подчеркивание (_)
// Идентификаторы попадают в subject/канал уведомлений, поэтому точки запрещены
var IDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

const (
	// MaxIDLen максимальная длина идентификатора
	MaxIDLen = 64
	// MaxDisplayNameLen максимальная длина отображаемого имени (в символах)
	MaxDisplayNameLen = 128
	// MaxTitleLen максимальная длина заголовка документа (в символах)
	MaxTitleLen = 256
	// MaxContentLen максимальный размер содержимого одной операции (в байтах)
	MaxContentLen = 1 << 20
	// MaxLine максимальный номер строки позиции
	MaxLine = 1<<31 - 1
	// MaxCharacter максимальный номер символа в строке
	MaxCharacter = 1<<31 - 1
)

// ValidateID проверяет идентификатор. field используется в тексте ошибки.
func ValidateID(field, id string) error {
	if id == "" {
		return fmt.Errorf("%s cannot be empty", field)
	}

	if len(id) > MaxIDLen {
		return fmt.Errorf("%s must not exceed %d characters", field, MaxIDLen)
	}

	if !IDPattern.MatchString(id) {
		return fmt.Errorf("%s can only contain letters (a-z, A-Z), numbers (0-9), hyphens (-) and underscores (_)", field)
	}

	return nil
}

// ValidateDisplayName проверяет отображаемое имя актора
// Пустое имя допустимо
func ValidateDisplayName(name string) error {
	return validateText("display name", name, MaxDisplayNameLen)
}

// ValidateTitle проверяет заголовок документа
func ValidateTitle(title string) error {
	if strings.TrimSpace(title) == "" {
		return fmt.Errorf("title cannot be empty")
	}
	return validateText("title", title, MaxTitleLen)
}

// ValidatePosition проверяет позицию операции: строка, символ и смещение неотрицательные,
// строка и символ не больше MaxLine и MaxCharacter
func ValidatePosition(pos models.Position) error {
	if pos.Line < 0 {
		return fmt.Errorf("line must not be negative")
	}
	if pos.Character < 0 {
		return fmt.Errorf("character must not be negative")
	}
	if pos.Line > MaxLine {
		return fmt.Errorf("line must not exceed %d", MaxLine)
	}
	if pos.Character > MaxCharacter {
		return fmt.Errorf("character must not exceed %d", MaxCharacter)
	}
	if pos.Offset != nil && *pos.Offset < 0 {
		return fmt.Errorf("offset must not be negative")
	}
	return nil
}

// ValidateOperation проверяет операцию перед добавлением в журнал
func ValidateOperation(kind models.OperationKind, pos models.Position, content string, length *int) error {
	if _, err := models.ParseOperationKind(string(kind)); err != nil {
		return err
	}
	if err := ValidatePosition(pos); err != nil {
		return err
	}
	if length != nil && *length < 0 {
		return fmt.Errorf("length must not be negative")
	}
	if len(content) > MaxContentLen {
		return fmt.Errorf("content must not exceed %d bytes", MaxContentLen)
	}
	if !utf8.ValidString(content) {
		return fmt.Errorf("content must be valid UTF-8")
	}

	if kind == models.OperationInsert && content == "" {
		return fmt.Errorf("insert requires content")
	}

	return nil
}

func validateText(field, s string, maxLen int) error {
	if utf8.RuneCountInString(s) > maxLen {
		return fmt.Errorf("%s must not exceed %d characters", field, maxLen)
	}
	for _, r := range s {
		if unicode.IsControl(r) {
			return fmt.Errorf("%s must not contain control characters", field)
		}
	}
	return nil
}
