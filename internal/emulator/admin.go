package emulator

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/kuldeepsharma1/cyber-honey-pot/internal/access"
)

type allowListBody struct {
	IP string `json:"ip"`
}

type allowListView struct {
	Current  []string `json:"current"`
	Defaults []string `json:"defaults"`
}

// RegisterAdmin registra as rotas de administração do PLC
func (a *App) RegisterAdmin(app *fiber.App) {
	api := app.Group("/api")
	api.Get("/state", a.getState)
	api.Get("/allowlist", a.getAllowLists)
	api.Post("/allowlist/:op", a.addAllowed)
	api.Post("/allowlist/:op/reset", a.resetAllowList)

	if a.metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(a.metrics.Handler()))
	}
}

func (a *App) getState(c *fiber.Ctx) error {
	s, err := a.State()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(s)
}

func (a *App) getAllowLists(c *fiber.Ctx) error {
	view := func(op access.Operation) allowListView {
		l := a.policy.List(op)
		return allowListView{Current: l.List(), Defaults: l.Defaults()}
	}
	return c.JSON(fiber.Map{
		"read":  view(access.Read),
		"write": view(access.Write),
	})
}

func (a *App) addAllowed(c *fiber.Ctx) error {
	op, ok := parseOperation(c.Params("op"))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "lista desconhecida"})
	}

	var body allowListBody
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "corpo inválido"})
	}
	if err := a.policy.Add(op, body.IP); err != nil {
		if errors.Is(err, access.ErrInvalidAddress) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"ok": true, string(op): a.policy.List(op).List()})
}

func (a *App) resetAllowList(c *fiber.Ctx) error {
	op, ok := parseOperation(c.Params("op"))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "lista desconhecida"})
	}
	a.policy.Reset(op)
	return c.JSON(fiber.Map{"ok": true, string(op): a.policy.List(op).List()})
}

func parseOperation(s string) (access.Operation, bool) {
	switch access.Operation(s) {
	case access.Read:
		return access.Read, true
	case access.Write:
		return access.Write, true
	}
	return "", false
}
