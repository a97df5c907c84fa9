package ledger

import "errors"

var (
	ErrInvalidAmount         = errors.New("amount must be positive")
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrAlreadyPending        = errors.New("bet already pending")
	ErrOverflow              = errors.New("balance overflow")
	// ErrDuplicateSettlement indica replay de uma liquidação já aplicada.
	// Não é falha para o usuário: quem chama trata como sucesso.
	ErrDuplicateSettlement = errors.New("settlement already applied")
)
