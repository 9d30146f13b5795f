package websocket

import (
	"net/http"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // o painel roda em outra origem
	},
}

// ManipularWS faz o upgrade da conexão; ?agent_id= restringe os eventos a um agente
func (g *Gerenciador) ManipularWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.Warn().Err(err).Msg("Erro ao abrir conexão WebSocket")
		return
	}

	cliente := &Cliente{
		conn:          conn,
		gerenciador:   g,
		enviar:        make(chan MensagemWS, 256),
		filtroAgentID: r.URL.Query().Get("agent_id"),
	}

	g.log.Debug().Str("remoto", r.RemoteAddr).Str("agent_id", cliente.filtroAgentID).Msg("Nova conexão WebSocket aceita")

	select {
	case g.registrar <- cliente:
	case <-g.doneChan:
		conn.Close()
		return
	}

	go cliente.bombearEscrita()
	go cliente.bombearLeitura()
}
