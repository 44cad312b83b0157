package domain

import (
	"net/mail"
	"regexp"
	"strings"
)

var (
	contactPattern = regexp.MustCompile(`^\(\d{2}\) \d{4,5}-\d{4}$`)
	cepPattern     = regexp.MustCompile(`^\d{5}-\d{3}$`)
)

// Document is a CPF number kept in the form it was supplied.
type Document string

// NewDocument validates a CPF, with or without punctuation.
func NewDocument(raw string) (Document, error) {
	if !validCPF(raw) {
		return "", ValidationError{Field: "document", Reason: "must be a valid CPF"}
	}
	return Document(strings.TrimSpace(raw)), nil
}

// Digits returns the document without punctuation.
func (d Document) Digits() string {
	return onlyDigits(string(d))
}

func validCPF(raw string) bool {
	digits := onlyDigits(raw)
	if len(digits) != 11 {
		return false
	}
	same := true
	for i := 1; i < len(digits); i++ {
		if digits[i] != digits[0] {
			same = false
			break
		}
	}
	if same {
		return false
	}
	check := func(n int) byte {
		sum := 0
		for i := 0; i < n; i++ {
			sum += int(digits[i]-'0') * (n + 1 - i)
		}
		rem := sum % 11
		if rem < 2 {
			return '0'
		}
		return byte('0' + 11 - rem)
	}
	return check(9) == digits[9] && check(10) == digits[10]
}

func onlyDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Email is a validated address.
type Email string

func NewEmail(raw string) (Email, error) {
	raw = strings.TrimSpace(raw)
	addr, err := mail.ParseAddress(raw)
	if err != nil || addr.Address != raw || !strings.Contains(raw[strings.LastIndex(raw, "@")+1:], ".") {
		return "", ValidationError{Field: "email", Reason: "must be valid"}
	}
	return Email(raw), nil
}

// Contact is a phone number in the (XX) XXXX-XXXX or (XX) 9XXXX-XXXX form.
type Contact string

func NewContact(raw string) (Contact, error) {
	raw = strings.TrimSpace(raw)
	if !contactPattern.MatchString(raw) {
		return "", ValidationError{Field: "contact", Reason: "must follow the format (XX) XXXX-XXXX or (XX) 9XXXX-XXXX"}
	}
	return Contact(raw), nil
}

// Address locates a client by postal code and street number.
type Address struct {
	CEP        string `json:"cep"`
	Number     int    `json:"number"`
	Complement string `json:"complement,omitempty"`
}

func NewAddress(cep string, number int, complement string) (Address, error) {
	cep = strings.TrimSpace(cep)
	if !cepPattern.MatchString(cep) {
		return Address{}, ValidationError{Field: "cep", Reason: "must follow the format XXXXX-XXX"}
	}
	if number <= 0 {
		return Address{}, ValidationError{Field: "number", Reason: "must be positive"}
	}
	return Address{CEP: cep, Number: number, Complement: strings.TrimSpace(complement)}, nil
}
