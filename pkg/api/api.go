// Package api implements the REST surface of the policy engine: device
// inventory, policy management and evaluation.
package api

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/fieldgrid/device-policy-engine/pkg/device"
	"github.com/fieldgrid/device-policy-engine/pkg/formula"
	"github.com/fieldgrid/device-policy-engine/pkg/metrics"
	"github.com/fieldgrid/device-policy-engine/pkg/policy"
	"github.com/fieldgrid/device-policy-engine/pkg/types"
)

// Server is the HTTP API server.
type Server struct {
	app      *fiber.App
	devices  *device.Registry
	policies *policy.Store
	engine   *policy.Engine
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// New creates a new API server over the given registry, store and engine.
func New(devices *device.Registry, policies *policy.Store, engine *policy.Engine, m *metrics.Metrics, logger *slog.Logger) *Server {
	srv := &Server{
		devices:  devices,
		policies: policies,
		engine:   engine,
		metrics:  m,
		logger:   logger,
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          30 * time.Second,
	})

	// Devices API
	app.Post("/v1/devices", srv.createDevice)
	app.Get("/v1/devices", srv.listDevices)
	app.Get("/v1/devices/:id", srv.getDevice)
	app.Delete("/v1/devices/:id", srv.deleteDevice)
	app.Put("/v1/devices/:id/attributes", srv.putAttributes)
	app.Post("/v1/devices/:id/commit", srv.commitDevice)
	app.Post("/v1/devices/:id/discard", srv.discardDevice)
	app.Post("/v1/devices/:id/evaluate", srv.evaluateDevice)

	// Policies API
	app.Post("/v1/policies", srv.createPolicy)
	app.Get("/v1/policies", srv.listPolicies)
	app.Get("/v1/policies/:name", srv.getPolicy)
	app.Put("/v1/policies/:name", srv.updatePolicy)
	app.Delete("/v1/policies/:name", srv.deletePolicy)

	// Ad hoc evaluation
	app.Post("/v1/evaluate", srv.evaluate)

	srv.app = app
	return srv
}

// Listen starts the HTTP server on the given address.
func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// App returns the underlying Fiber app (useful for testing).
func (s *Server) App() *fiber.App {
	return s.app
}

func errJSON(c *fiber.Ctx, code int, status, message string) error {
	return c.Status(code).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    code,
			"message": message,
			"status":  status,
		},
	})
}

// --- Device Handlers ---

type createDeviceRequest struct {
	Name   string            `json:"name"`
	Labels map[string]string `json:"labels"`
}

func (s *Server) createDevice(c *fiber.Ctx) error {
	var req createDeviceRequest
	if err := c.BodyParser(&req); err != nil {
		return errJSON(c, 400, "INVALID_ARGUMENT", fmt.Sprintf("invalid request body: %v", err))
	}
	if req.Name == "" {
		return errJSON(c, 400, "INVALID_ARGUMENT", "name is required")
	}

	d, err := s.devices.Create(req.Name, req.Labels)
	if err != nil {
		if errors.Is(err, device.ErrNameTaken) {
			return errJSON(c, 409, "ALREADY_EXISTS", err.Error())
		}
		return errJSON(c, 500, "INTERNAL", err.Error())
	}
	s.metrics.SetDevices(s.devices.Len())

	return c.Status(201).JSON(d.Snapshot())
}

func (s *Server) listDevices(c *fiber.Ctx) error {
	devices := s.devices.List()
	items := make([]device.Snapshot, len(devices))
	for i, d := range devices {
		items[i] = d.Snapshot()
	}
	return c.JSON(fiber.Map{"devices": items})
}

func (s *Server) getDevice(c *fiber.Ctx) error {
	d, err := s.devices.Get(c.Params("id"))
	if err != nil {
		return errJSON(c, 404, "NOT_FOUND", err.Error())
	}
	return c.JSON(d.Snapshot())
}

func (s *Server) deleteDevice(c *fiber.Ctx) error {
	if err := s.devices.Delete(c.Params("id")); err != nil {
		return errJSON(c, 404, "NOT_FOUND", err.Error())
	}
	s.metrics.SetDevices(s.devices.Len())
	return c.JSON(fiber.Map{"deleted": true})
}

func (s *Server) putAttributes(c *fiber.Ctx) error {
	d, err := s.devices.Get(c.Params("id"))
	if err != nil {
		return errJSON(c, 404, "NOT_FOUND", err.Error())
	}

	var attrs map[string]interface{}
	if err := c.BodyParser(&attrs); err != nil {
		return errJSON(c, 400, "INVALID_ARGUMENT", fmt.Sprintf("invalid request body: %v", err))
	}

	// Convert the whole payload before applying anything, so a rejected
	// request leaves the device untouched.
	converted := make(map[string]types.Value, len(attrs))
	for name, raw := range attrs {
		v, ok := types.FromAny(raw)
		if !ok {
			return errJSON(c, 400, "INVALID_ARGUMENT",
				fmt.Sprintf("attribute %q: unsupported value type", name))
		}
		converted[name] = v
	}
	for name, v := range converted {
		d.SetCurrent(name, v)
	}

	return c.JSON(d.Snapshot())
}

func (s *Server) commitDevice(c *fiber.Ctx) error {
	d, err := s.devices.Get(c.Params("id"))
	if err != nil {
		return errJSON(c, 404, "NOT_FOUND", err.Error())
	}
	changed := d.Commit()
	return c.JSON(fiber.Map{
		"changed": changed,
		"device":  d.Snapshot(),
	})
}

func (s *Server) discardDevice(c *fiber.Ctx) error {
	d, err := s.devices.Get(c.Params("id"))
	if err != nil {
		return errJSON(c, 404, "NOT_FOUND", err.Error())
	}
	d.Discard()
	return c.JSON(d.Snapshot())
}

func (s *Server) evaluateDevice(c *fiber.Ctx) error {
	d, err := s.devices.Get(c.Params("id"))
	if err != nil {
		return errJSON(c, 404, "NOT_FOUND", err.Error())
	}

	commit := c.QueryBool("commit")
	results, err := s.engine.EvaluateDevice(c.Context(), d, commit)
	if err != nil {
		return errJSON(c, 500, "INTERNAL", err.Error())
	}

	return c.JSON(fiber.Map{
		"results":   results,
		"committed": commit,
		"device":    d.Snapshot(),
	})
}

// --- Policy Handlers ---

func (s *Server) createPolicy(c *fiber.Ctx) error {
	var spec policy.Spec
	if err := c.BodyParser(&spec); err != nil {
		return errJSON(c, 400, "INVALID_ARGUMENT", fmt.Sprintf("invalid request body: %v", err))
	}

	p, err := s.policies.Create(spec)
	if err != nil {
		if errors.Is(err, policy.ErrAlreadyExists) {
			return errJSON(c, 409, "ALREADY_EXISTS", err.Error())
		}
		return errJSON(c, 400, "INVALID_ARGUMENT", err.Error())
	}
	s.metrics.SetPoliciesLoaded(s.policies.Len())

	return c.Status(201).JSON(policyToJSON(p))
}

func (s *Server) listPolicies(c *fiber.Ctx) error {
	policies := s.policies.List()
	items := make([]fiber.Map, len(policies))
	for i, p := range policies {
		items[i] = policyToJSON(p)
	}
	return c.JSON(fiber.Map{"policies": items})
}

func (s *Server) getPolicy(c *fiber.Ctx) error {
	p, err := s.policies.Get(c.Params("name"))
	if err != nil {
		return errJSON(c, 404, "NOT_FOUND", err.Error())
	}
	return c.JSON(policyToJSON(p))
}

func (s *Server) updatePolicy(c *fiber.Ctx) error {
	var spec policy.Spec
	if err := c.BodyParser(&spec); err != nil {
		return errJSON(c, 400, "INVALID_ARGUMENT", fmt.Sprintf("invalid request body: %v", err))
	}

	p, err := s.policies.Update(c.Params("name"), spec)
	if err != nil {
		if errors.Is(err, policy.ErrNotFound) {
			return errJSON(c, 404, "NOT_FOUND", err.Error())
		}
		return errJSON(c, 400, "INVALID_ARGUMENT", err.Error())
	}

	return c.JSON(policyToJSON(p))
}

func (s *Server) deletePolicy(c *fiber.Ctx) error {
	if err := s.policies.Delete(c.Params("name")); err != nil {
		return errJSON(c, 404, "NOT_FOUND", err.Error())
	}
	s.metrics.SetPoliciesLoaded(s.policies.Len())
	return c.JSON(fiber.Map{"deleted": true})
}

// --- Ad Hoc Evaluation ---

type evaluateRequest struct {
	Formula   string                 `json:"formula"`
	Current   map[string]interface{} `json:"current"`
	InProcess map[string]interface{} `json:"in_process"`
}

// scope is a throwaway value provider for ad hoc requests.
type scope struct {
	current   map[string]types.Value
	inProcess map[string]types.Value
}

func (s *scope) GetCurrentValue(name string) (types.Value, bool) {
	v, ok := s.current[name]
	return v, ok
}

func (s *scope) GetInProcessValue(name string) (types.Value, bool) {
	v, ok := s.inProcess[name]
	return v, ok
}

func buildScope(current, inProcess map[string]interface{}) (*scope, error) {
	sc := &scope{
		current:   make(map[string]types.Value, len(current)),
		inProcess: make(map[string]types.Value, len(inProcess)),
	}
	for name, raw := range current {
		v, ok := types.FromAny(raw)
		if !ok {
			return nil, fmt.Errorf("attribute %q: unsupported value type", name)
		}
		sc.current[name] = v
	}
	for name, raw := range inProcess {
		v, ok := types.FromAny(raw)
		if !ok {
			return nil, fmt.Errorf("attribute %q: unsupported value type", name)
		}
		sc.inProcess[name] = v
	}
	return sc, nil
}

func (s *Server) evaluate(c *fiber.Ctx) error {
	var req evaluateRequest
	if err := c.BodyParser(&req); err != nil {
		return errJSON(c, 400, "INVALID_ARGUMENT", fmt.Sprintf("invalid request body: %v", err))
	}
	if req.Formula == "" {
		return errJSON(c, 400, "INVALID_ARGUMENT", "formula is required")
	}

	f, err := formula.New(req.Formula, formula.WithLogger(s.logger))
	if err != nil {
		return errJSON(c, 400, "INVALID_ARGUMENT", err.Error())
	}
	sc, err := buildScope(req.Current, req.InProcess)
	if err != nil {
		return errJSON(c, 400, "INVALID_ARGUMENT", err.Error())
	}

	value := f.Compute(sc)
	return c.JSON(fiber.Map{
		"value": value,
		"type":  value.Type().String(),
		"dump":  f.Dump(),
	})
}

// --- Helpers ---

func policyToJSON(p *policy.Policy) fiber.Map {
	return fiber.Map{
		"id":          p.ID,
		"name":        p.Name,
		"description": p.Description,
		"target":      p.Target,
		"formula":     p.Source,
		"priority":    p.Priority,
		"disabled":    p.Disabled,
		"createTime":  p.CreatedAt.Format(time.RFC3339),
	}
}
