package hub

import (
	"encoding/json"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/kuldeepsharma1/cyber-honey-pot/internal/monitorclient"
)

// API expõe a ingestão e as consultas do hub via Fiber
type API struct {
	manager *DataManager
	log     zerolog.Logger
}

// NewAPI cria a API sobre um DataManager
func NewAPI(manager *DataManager, log zerolog.Logger) *API {
	return &API{manager: manager, log: log}
}

// Register registra as rotas no app
func (a *API) Register(app *fiber.App) {
	app.Post(monitorclient.PostPath, a.dataPost)

	api := app.Group("/api")
	api.Get("/plcs", a.listByType(monitorclient.TypePLC))
	api.Get("/controllers", a.listByType(monitorclient.TypeController))
	api.Get("/agents", a.listByType(""))
	api.Get("/agents/:id", a.agentState)
	api.Get("/agents/:id/reports", a.agentReports)
}

// dataPost sempre responde {"ok": true}; erros são apenas registrados
func (a *API) dataPost(c *fiber.Ctx) error {
	var env monitorclient.Envelope
	if err := json.Unmarshal(c.Body(), &env); err != nil {
		a.log.Warn().Err(err).Str("remoto", c.IP()).Msg("Corpo inválido em /dataPost")
		return c.JSON(fiber.Map{"ok": true})
	}

	if err := a.manager.Handle(env); err != nil {
		evt := a.log.Warn()
		if errors.Is(err, ErrUnknownAgent) {
			evt = a.log.Debug()
		}
		evt.Err(err).Str("agent_id", env.ID).Str("acao", env.Action).Msg("Requisição do agente ignorada")
	}
	return c.JSON(fiber.Map{"ok": true})
}

func (a *API) listByType(agentType string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(a.manager.QueryAll(agentType))
	}
}

func (a *API) agentState(c *fiber.Ctx) error {
	state, ok := a.manager.QueryState(c.Params("id"))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "agente não encontrado"})
	}
	return c.JSON(state)
}

func (a *API) agentReports(c *fiber.Ctx) error {
	reports, ok := a.manager.QueryReports(c.Params("id"))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "agente não encontrado"})
	}
	return c.JSON(reports)
}
