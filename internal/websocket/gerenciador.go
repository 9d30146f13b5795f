// Package websocket distribui os eventos do hub aos painéis conectados.
package websocket

import (
	"sync"

	"github.com/rs/zerolog"
)

// Gerenciador mantém os clientes WebSocket e distribui os eventos
type Gerenciador struct {
	clientes     map[*Cliente]bool
	broadcast    chan MensagemWS
	registrar    chan *Cliente
	desregistrar chan *Cliente
	mutex        sync.RWMutex
	log          zerolog.Logger
	doneChan     chan struct{}
	paraOnce     sync.Once
	wg           sync.WaitGroup
}

// NovoGerenciador cria um novo gerenciador de WebSocket
func NovoGerenciador(log zerolog.Logger) *Gerenciador {
	return &Gerenciador{
		clientes:     make(map[*Cliente]bool),
		broadcast:    make(chan MensagemWS, 256),
		registrar:    make(chan *Cliente),
		desregistrar: make(chan *Cliente),
		log:          log,
		doneChan:     make(chan struct{}),
	}
}

// Iniciar inicia o loop de distribuição
func (g *Gerenciador) Iniciar() {
	g.wg.Add(1)
	go g.executar()
	g.log.Info().Msg("Gerenciador WebSocket iniciado")
}

// Parar encerra o loop e fecha todas as conexões
func (g *Gerenciador) Parar() {
	g.paraOnce.Do(func() {
		close(g.doneChan)
		g.wg.Wait()

		g.mutex.Lock()
		for cliente := range g.clientes {
			close(cliente.enviar)
			delete(g.clientes, cliente)
		}
		g.mutex.Unlock()
		g.log.Info().Msg("Gerenciador WebSocket parado")
	})
}

// Publicar enfileira um evento sem bloquear; descarta se a fila estiver cheia
func (g *Gerenciador) Publicar(msg MensagemWS) {
	select {
	case g.broadcast <- msg:
	case <-g.doneChan:
	default:
		g.log.Warn().Str("agent_id", msg.AgentID).Msg("Fila de broadcast cheia, evento descartado")
	}
}

// Clientes retorna o número de conexões ativas
func (g *Gerenciador) Clientes() int {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	return len(g.clientes)
}

func (g *Gerenciador) executar() {
	defer g.wg.Done()
	for {
		select {
		case <-g.doneChan:
			return

		case cliente := <-g.registrar:
			g.mutex.Lock()
			g.clientes[cliente] = true
			g.mutex.Unlock()

		case cliente := <-g.desregistrar:
			g.mutex.Lock()
			if _, ok := g.clientes[cliente]; ok {
				delete(g.clientes, cliente)
				close(cliente.enviar)
			}
			g.mutex.Unlock()

		case mensagem := <-g.broadcast:
			g.mutex.Lock()
			for cliente := range g.clientes {
				if !cliente.aceita(mensagem) {
					continue
				}
				select {
				case cliente.enviar <- mensagem:
				default:
					// cliente lento
					close(cliente.enviar)
					delete(g.clientes, cliente)
				}
			}
			g.mutex.Unlock()
		}
	}
}

func (g *Gerenciador) remover(c *Cliente) {
	select {
	case g.desregistrar <- c:
	case <-g.doneChan:
	}
}

func (g *Gerenciador) trocarFiltro(c *Cliente, agentID string) {
	g.mutex.Lock()
	c.filtroAgentID = agentID
	g.mutex.Unlock()
}
