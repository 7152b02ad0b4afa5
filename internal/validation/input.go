package validation

import (
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"
)

// Константы валидации
const (
	MinOrderTitleLength   = 3
	MaxOrderTitleLength   = 200
	MaxReasonLength       = 2000
	MaxDetailsLength      = 5000
	MinMessageLength      = 1
	MaxMessageLength      = 5000
	MaxExternalLinkLength = 500
	MaxFileRefsCount      = 20
	MaxLinksCount         = 20
	MaxFileRefLength      = 500
)

// ValidateLength проверяет длину строки.
func ValidateLength(fieldName, value string, min, max int) error {
	length := utf8.RuneCountInString(value)
	if min > 0 && length < min {
		return fmt.Errorf("%s должен быть не менее %d символов", fieldName, min)
	}
	if max > 0 && length > max {
		return fmt.Errorf("%s должен быть не более %d символов", fieldName, max)
	}
	return nil
}

// ValidateNonEmpty проверяет, что строка не пустая.
func ValidateNonEmpty(fieldName, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s не может быть пустым", fieldName)
	}
	return nil
}

// ValidateOrderTitle проверяет название заказа.
func ValidateOrderTitle(title string) error {
	if title == "" {
		return fmt.Errorf("название заказа обязательно")
	}

	title = strings.TrimSpace(title)

	if err := ValidateLength("название заказа", title, MinOrderTitleLength, MaxOrderTitleLength); err != nil {
		return err
	}

	return nil
}

// ValidateReason проверяет обоснование (отмена, спор, отклонение работы).
// minLength берётся из настроек платформы.
func ValidateReason(fieldName, reason string, minLength int) error {
	if err := ValidateNonEmpty(fieldName, reason); err != nil {
		return err
	}
	return ValidateLength(fieldName, strings.TrimSpace(reason), minLength, MaxReasonLength)
}

// ValidateDetails проверяет необязательное подробное описание.
func ValidateDetails(details string) error {
	return ValidateLength("описание", strings.TrimSpace(details), 0, MaxDetailsLength)
}

// ValidateExternalLink проверяет внешнюю ссылку.
func ValidateExternalLink(link string) error {
	linkStr := strings.TrimSpace(link)

	if err := ValidateLength("внешняя ссылка", linkStr, 1, MaxExternalLinkLength); err != nil {
		return err
	}

	// Проверка формата URL
	parsedURL, err := url.Parse(linkStr)
	if err != nil {
		return fmt.Errorf("некорректный формат URL")
	}

	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("ссылка должна начинаться с http:// или https://")
	}

	if parsedURL.Host == "" {
		return fmt.Errorf("ссылка должна содержать доменное имя")
	}
	return nil
}

// ValidateFileRefs проверяет ссылки на загруженные файлы.
func ValidateFileRefs(refs []string) error {
	if len(refs) > MaxFileRefsCount {
		return fmt.Errorf("максимальное количество файлов: %d", MaxFileRefsCount)
	}
	for _, ref := range refs {
		if err := ValidateNonEmpty("ссылка на файл", ref); err != nil {
			return err
		}
		if err := ValidateLength("ссылка на файл", ref, 0, MaxFileRefLength); err != nil {
			return err
		}
	}
	return nil
}

// ValidateLinks проверяет список внешних ссылок.
func ValidateLinks(links []string) error {
	if len(links) > MaxLinksCount {
		return fmt.Errorf("максимальное количество ссылок: %d", MaxLinksCount)
	}
	for _, link := range links {
		if err := ValidateExternalLink(link); err != nil {
			return err
		}
	}
	return nil
}

// ValidateMessageContent проверяет содержимое сообщения.
func ValidateMessageContent(content string) error {
	if content == "" {
		return fmt.Errorf("сообщение не может быть пустым")
	}

	content = strings.TrimSpace(content)

	if err := ValidateLength("сообщение", content, MinMessageLength, MaxMessageLength); err != nil {
		return err
	}

	return nil
}
