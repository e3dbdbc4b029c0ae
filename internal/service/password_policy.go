package service

import (
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

// StrengthErrorKind etiqueta una condicion de fuerza de password que fallo.
type StrengthErrorKind string

const (
	StrengthMinimumLength    StrengthErrorKind = "minimum_length"
	StrengthUppercase        StrengthErrorKind = "uppercase"
	StrengthLowercase        StrengthErrorKind = "lowercase"
	StrengthNumber           StrengthErrorKind = "number"
	StrengthSpecialCharacter StrengthErrorKind = "special_character"
)

const passwordSpecialSet = "!@#$%^&*()-_=+[]{};:'\",.<>/?\\|`~"

// PasswordPolicy valida fuerza y delega hashing/verificacion a bcrypt.
// No hay puntaje: las cinco condiciones son obligatorias por separado.
type PasswordPolicy struct {
	defaultPassword string
}

func NewPasswordPolicy(defaultPassword string) PasswordPolicy {
	if defaultPassword == "" {
		defaultPassword = "123456"
	}
	return PasswordPolicy{defaultPassword: defaultPassword}
}

// DefaultPassword devuelve la password inicial que recibe toda cuenta nueva.
func (p PasswordPolicy) DefaultPassword() string {
	return p.defaultPassword
}

// IsDefaultPassword compara contra el literal de password por defecto.
func (p PasswordPolicy) IsDefaultPassword(candidate string) bool {
	return candidate == p.defaultPassword
}

// StrengthErrors devuelve todas las condiciones que fallan, no solo la primera.
func (p PasswordPolicy) StrengthErrors(password string) []StrengthErrorKind {
	var kinds []StrengthErrorKind
	if len(password) < 8 {
		kinds = append(kinds, StrengthMinimumLength)
	}
	var hasUpper, hasLower, hasDigit, hasSpecial bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case strings.ContainsRune(passwordSpecialSet, r):
			hasSpecial = true
		}
	}
	if !hasUpper {
		kinds = append(kinds, StrengthUppercase)
	}
	if !hasLower {
		kinds = append(kinds, StrengthLowercase)
	}
	if !hasDigit {
		kinds = append(kinds, StrengthNumber)
	}
	if !hasSpecial {
		kinds = append(kinds, StrengthSpecialCharacter)
	}
	return kinds
}

// IsStrong reporta si la password cumple las cinco condiciones.
func (p PasswordPolicy) IsStrong(password string) bool {
	return len(p.StrengthErrors(password)) == 0
}

// Hash genera un hash bcrypt salteado; dos llamadas con la misma entrada
// producen hashes distintos.
func (p PasswordPolicy) Hash(password string) (string, error) {
	hashBytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashBytes), nil
}

// Verify compara password contra un hash bcrypt; nunca comparacion de strings.
func (p PasswordPolicy) Verify(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
