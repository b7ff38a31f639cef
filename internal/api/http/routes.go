package httpapi

import (
	"errors"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/mfields/weathervane/internal/weather"
)

var validate = validator.New()

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, orch *weather.Orchestrator, geocoder weather.Geocoder, defaultUnits weather.Units) {
	v1 := app.Group("/api/v1")

	v1.Get("/weather/current", weatherHandler(orch, weather.KindCurrent, defaultUnits))
	v1.Get("/weather/forecast", weatherHandler(orch, weather.KindForecast, defaultUnits))
	v1.Get("/weather/alerts", weatherHandler(orch, weather.KindAlerts, defaultUnits))

	v1.Get("/cities/search", func(c *fiber.Ctx) error {
		query := c.Query("q")
		if query == "" {
			return fiber.NewError(fiber.StatusBadRequest, "q query parameter is required")
		}

		matches, err := geocoder.Search(c.Context(), query)
		if err != nil {
			return mapError(err)
		}
		return c.JSON(fiber.Map{
			"query":   query,
			"matches": matches,
		})
	})

	v1.Get("/export", func(c *fiber.Ctx) error {
		req, err := parseWeatherQuery(c, defaultUnits)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		result, err := orch.Perform(c.Context(), req.toQuery(weather.KindAll))
		if err != nil {
			return mapError(err)
		}

		doc, err := weather.Export(result)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "failed to build export document")
		}

		filename := weather.ExportFilename(result.Location.Name, result.FetchedAt)
		c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		c.Set(fiber.HeaderContentDisposition, `attachment; filename="`+filename+`"`)
		return c.Send(doc)
	})
}

func weatherHandler(orch *weather.Orchestrator, kind weather.RequestKind, defaultUnits weather.Units) fiber.Handler {
	return func(c *fiber.Ctx) error {
		req, err := parseWeatherQuery(c, defaultUnits)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		result, err := orch.Perform(c.Context(), req.toQuery(kind))
		if err != nil {
			return mapError(err)
		}
		return c.JSON(result)
	}
}

// weatherQuery holds validated query parameters for the weather endpoints.
type weatherQuery struct {
	City  string `validate:"required"`
	Units string `validate:"omitempty,oneof=metric imperial"`
	Days  int    `validate:"omitempty,min=1,max=15"`
}

func (w weatherQuery) toQuery(kind weather.RequestKind) weather.Query {
	units := weather.Units(w.Units)
	return weather.Query{
		City:  w.City,
		Units: units,
		Kind:  kind,
		Days:  w.Days,
	}
}

func parseWeatherQuery(c *fiber.Ctx, defaultUnits weather.Units) (weatherQuery, error) {
	var q weatherQuery

	q.City = c.Query("city")
	q.Units = c.Query("units", string(defaultUnits))

	if daysStr := c.Query("days"); daysStr != "" {
		days, err := strconv.Atoi(daysStr)
		if err != nil {
			return q, errors.New("days must be an integer")
		}
		q.Days = days
	}

	if err := validate.Struct(q); err != nil {
		return q, err
	}
	return q, nil
}

// mapError translates core errors into HTTP status codes. NotFound surfaces
// as 404; any other total failure as 502 since both upstreams failed us.
func mapError(err error) error {
	var notFound *weather.NotFoundError
	if errors.As(err, &notFound) {
		return fiber.NewError(fiber.StatusNotFound, notFound.Error())
	}

	var total *weather.TotalFailure
	if errors.As(err, &total) {
		return fiber.NewError(fiber.StatusBadGateway, total.Error())
	}

	return fiber.NewError(fiber.StatusInternalServerError, "failed to fetch weather data")
}
