package utils

import (
	"errors"
	"math/rand"

	"github.com/gofiber/fiber/v2"
)

var aliasAdj = []string{
	"Adorable", "Beautiful", "Big", "Bright", "Clean", "Clever", "Cool",
	"Cute", "Cunning", "Determined", "Energetic", "Efficient", "Fantastic",
	"Fast", "Fine", "Fresh", "Good", "Gorgeous", "Great", "Handsome",
	"Hot", "Kind", "Lovely", "Mystic", "Neat", "Nice", "Patient",
	"Pretty", "Powerful", "Rich", "Secret", "Smart", "Solid", "Special",
	"Strategic", "Strong", "Tidy", "Wise",
}

var aliasFruit = []string{
	"Apple", "Avocado", "Banana", "Blackberry", "Blueberry", "Broccoli",
	"Carrot", "Cherry", "Coconut", "Grape", "Lemon", "Lettuce", "Mango",
	"Melon", "Mushroom", "Onion", "Orange", "Papaya", "Peach", "Pear",
	"Pineapple", "Potato", "Pumpkin", "Raspberry", "Strawberry", "Tomato",
}

func GenAlias() string {
	adj := aliasAdj[rand.Intn(len(aliasAdj))]
	fruit := aliasFruit[rand.Intn(len(aliasFruit))]

	return adj + " " + fruit
}

// NewWebServer builds the fiber app every protocol endpoint hangs off.
// Request bodies stream instead of buffering so large uploads stay within
// one copy buffer of memory.
func NewWebServer(bodyLimit int) *fiber.App {
	return fiber.New(fiber.Config{
		DisableStartupMessage: true,
		StreamRequestBody:     true,
		BodyLimit:             bodyLimit,
		ErrorHandler:          errorHandler,
	})
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		code = fiberErr.Code
	}

	message := "Internal server error"
	if code == fiber.StatusRequestEntityTooLarge {
		message = "Request body exceeds the allowed size"
	}

	return c.Status(code).JSON(fiber.Map{"message": message})
}
