// Package access controla quais IPs podem ler e escrever no PLC emulado
package access

import (
	"errors"
	"fmt"
	"net"
	"sync"
)

var (
	ErrAccessDenied   = errors.New("acesso negado")
	ErrInvalidAddress = errors.New("endereço IP inválido")
)

// Operation é o tipo de acesso verificado
type Operation string

const (
	Read  Operation = "read"
	Write Operation = "write"
)

// Change descreve uma alteração feita em uma allow-list
type Change struct {
	Operation Operation
	Action    string // "add" ou "reset"
	IP        string
}

// AllowList é o conjunto de IPs permitidos para uma operação.
// Uma lista vazia permite qualquer IP.
type AllowList struct {
	mu       sync.RWMutex
	defaults []string
	current  []string
}

// NewAllowList cria uma lista com os IPs padrão da configuração
func NewAllowList(defaults []string) (*AllowList, error) {
	normalized := make([]string, 0, len(defaults))
	for _, ip := range defaults {
		n, err := normalize(ip)
		if err != nil {
			return nil, err
		}
		normalized = appendUnique(normalized, n)
	}
	return &AllowList{
		defaults: normalized,
		current:  append([]string(nil), normalized...),
	}, nil
}

// Add inclui um IP na lista
func (l *AllowList) Add(ip string) error {
	n, err := normalize(ip)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.current = appendUnique(l.current, n)
	return nil
}

// Reset restaura a lista padrão
func (l *AllowList) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.current = append([]string(nil), l.defaults...)
}

// Allowed informa se o IP pode executar a operação
func (l *AllowList) Allowed(ip string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if len(l.current) == 0 {
		return true
	}
	n, err := normalize(ip)
	if err != nil {
		return false
	}
	for _, allowed := range l.current {
		if allowed == n {
			return true
		}
	}
	return false
}

// List retorna uma cópia da lista atual
func (l *AllowList) List() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]string{}, l.current...)
}

// Defaults retorna uma cópia da lista padrão
func (l *AllowList) Defaults() []string {
	return append([]string{}, l.defaults...)
}

// Policy junta as listas de leitura e escrita de um servidor
type Policy struct {
	read  *AllowList
	write *AllowList

	mu       sync.RWMutex
	observer func(Change)
}

// NewPolicy cria a política a partir das listas padrão
func NewPolicy(readDefaults, writeDefaults []string) (*Policy, error) {
	r, err := NewAllowList(readDefaults)
	if err != nil {
		return nil, fmt.Errorf("allow-list de leitura: %w", err)
	}
	w, err := NewAllowList(writeDefaults)
	if err != nil {
		return nil, fmt.Errorf("allow-list de escrita: %w", err)
	}
	return &Policy{read: r, write: w}, nil
}

// SetObserver define quem é notificado após cada alteração bem-sucedida
func (p *Policy) SetObserver(fn func(Change)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observer = fn
}

// List retorna a allow-list de uma operação
func (p *Policy) List(op Operation) *AllowList {
	if op == Write {
		return p.write
	}
	return p.read
}

// Check retorna ErrAccessDenied se o IP não puder executar a operação
func (p *Policy) Check(op Operation, ip string) error {
	if p.List(op).Allowed(ip) {
		return nil
	}
	return fmt.Errorf("%s de %s: %w", op, ip, ErrAccessDenied)
}

// Add inclui um IP na lista da operação e notifica o observador
func (p *Policy) Add(op Operation, ip string) error {
	if err := p.List(op).Add(ip); err != nil {
		return err
	}
	p.notify(Change{Operation: op, Action: "add", IP: ip})
	return nil
}

// Reset restaura a lista padrão da operação e notifica o observador
func (p *Policy) Reset(op Operation) {
	p.List(op).Reset()
	p.notify(Change{Operation: op, Action: "reset"})
}

func (p *Policy) notify(c Change) {
	p.mu.RLock()
	fn := p.observer
	p.mu.RUnlock()
	if fn != nil {
		fn(c)
	}
}

// HostOf extrai o IP de um endereço "ip:porta"; endereços sem porta são devolvidos como estão
func HostOf(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

func normalize(ip string) (string, error) {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return "", fmt.Errorf("%q: %w", ip, ErrInvalidAddress)
	}
	return parsed.String(), nil
}

func appendUnique(list []string, v string) []string {
	for _, x := range list {
		if x == v {
			return list
		}
	}
	return append(list, v)
}
