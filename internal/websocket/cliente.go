package websocket

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
)

// Cliente representa uma conexão WebSocket com um cliente
type Cliente struct {
	gerenciador   *Gerenciador
	conn          *websocket.Conn
	enviar        chan MensagemWS
	filtroAgentID string // vazio significa sem filtro
}

func (c *Cliente) aceita(m MensagemWS) bool {
	return c.filtroAgentID == "" || c.filtroAgentID == m.AgentID
}

// bombearEscrita envia mensagens para o WebSocket
func (c *Cliente) bombearEscrita() {
	defer c.conn.Close()

	// ping periódico para manter a conexão
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case mensagem, ok := <-c.enviar:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				// Canal fechado, encerra conexão
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteJSON(mensagem); err != nil {
				c.gerenciador.log.Debug().Err(err).Msg("Erro ao enviar mensagem WebSocket")
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// bombearLeitura lê comandos de filtro do cliente até a conexão cair
func (c *Cliente) bombearLeitura() {
	defer func() {
		c.gerenciador.remover(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(4096) // 4KB
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure) {
				c.gerenciador.log.Warn().Err(err).Msg("Erro na leitura do WebSocket")
			}
			break
		}

		var cmd ComandoFiltro
		if err := json.Unmarshal(message, &cmd); err != nil {
			c.gerenciador.log.Debug().Err(err).Msg("Comando WebSocket inválido")
			continue
		}
		c.gerenciador.trocarFiltro(c, cmd.AgentID)
	}
}
