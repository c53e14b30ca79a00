package controllers

import (
	"errors"
	"strings"

	"esign-backend/signature"

	"github.com/gofiber/fiber/v2"
)

const linkInvalid = "link is invalid or has expired"

// signerError maps service errors for anonymous callers. Messages never say
// whether a request exists or why a token failed.
func signerError(err error) error {
	switch {
	case errors.Is(err, signature.ErrInvalidToken), errors.Is(err, signature.ErrRequestNotFound):
		return fiber.NewError(fiber.StatusNotFound, linkInvalid)
	case errors.Is(err, signature.ErrExpired):
		return fiber.NewError(fiber.StatusConflict, "this signing request has expired")
	case errors.Is(err, signature.ErrInvalidState):
		return fiber.NewError(fiber.StatusConflict, "this signing request is no longer open")
	case errors.Is(err, signature.ErrInvalidCode):
		return fiber.NewError(fiber.StatusBadRequest, "the code is invalid or has expired")
	}
	return commonError(err)
}

// staffError maps service errors for authenticated staff, naming the guard
// that failed.
func staffError(err error) error {
	var se *signature.StateError
	switch {
	case errors.Is(err, signature.ErrRequestNotFound):
		return fiber.NewError(fiber.StatusNotFound, "signature request not found")
	case errors.Is(err, signature.ErrExpired):
		return fiber.NewError(fiber.StatusConflict, "signature request has expired")
	case errors.As(err, &se):
		return fiber.NewError(fiber.StatusConflict, se.Error())
	}
	return commonError(err)
}

func commonError(err error) error {
	switch {
	case errors.Is(err, signature.ErrOtpLimitExceeded):
		return fiber.NewError(fiber.StatusTooManyRequests, "no more codes can be requested for this document")
	case errors.Is(err, signature.ErrRateLimited):
		return fiber.NewError(fiber.StatusTooManyRequests, "too many requests, try again later")
	case errors.Is(err, signature.ErrValidation):
		msg := strings.TrimPrefix(err.Error(), signature.ErrValidation.Error()+": ")
		return fiber.NewError(fiber.StatusBadRequest, msg)
	case errors.Is(err, signature.ErrEmailDelivery):
		return fiber.NewError(fiber.StatusBadGateway, "the email could not be sent, try again later")
	}
	return fiber.NewError(fiber.StatusInternalServerError, "internal server error")
}

func clientOf(c *fiber.Ctx) signature.Client {
	return signature.Client{IP: c.IP(), UserAgent: c.Get(fiber.HeaderUserAgent)}
}
