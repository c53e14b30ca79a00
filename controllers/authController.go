package controllers

import (
	"errors"
	"time"

	"esign-backend/database"
	"esign-backend/middlewares"
	"esign-backend/models"
	"esign-backend/utils"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type AuthController struct {
	db       *gorm.DB
	secret   string
	tokenTTL time.Duration
	logger   *zap.Logger
}

func NewAuthController(db *gorm.DB, secret string, ttl time.Duration, logger *zap.Logger) *AuthController {
	return &AuthController{db: db, secret: secret, tokenTTL: ttl, logger: logger.With(zap.String("component", "auth"))}
}

type registerDTO struct {
	FirstName       string `json:"first_name" validate:"required,max=100"`
	LastName        string `json:"last_name" validate:"required,max=100"`
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required,min=8,max=72"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
	Salutation      string `json:"salutation" validate:"max=20"`
	Title           string `json:"title" validate:"max=50"`
	PhoneNumber     string `json:"phone_number" validate:"max=50"`
	MobileNumber    string `json:"mobile_number" validate:"max=50"`
	CompanyName     string `json:"company_name" validate:"required,max=120"`
	Address         string `json:"address" validate:"required"`
	City            string `json:"city" validate:"required"`
	Country         string `json:"country" validate:"required"`
	Zip             string `json:"zip" validate:"required"`
	Homepage        string `json:"homepage" validate:"omitempty,url"`
	UID             string `json:"uid"`
}

type loginDTO struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (h *AuthController) Register(c *fiber.Ctx) error {
	var data registerDTO
	if err := middlewares.BindAndValidate(c, &data); err != nil {
		return err
	}
	utils.NormalizeDTO(&data)

	schemaName, err := database.SchemaName(data.CompanyName)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "company name cannot be used as a tenant name")
	}

	var existing int64
	if err := h.db.Model(&models.User{}).Where("email = ?", data.Email).Count(&existing).Error; err != nil {
		return err
	}
	if existing > 0 {
		return fiber.NewError(fiber.StatusBadRequest, "email already exists")
	}
	if err := h.db.Model(&models.Company{}).Where("schema_name = ?", schemaName).Count(&existing).Error; err != nil {
		return err
	}
	if existing > 0 {
		return fiber.NewError(fiber.StatusBadRequest, "company already registered")
	}

	var company models.Company
	err = h.db.Transaction(func(tx *gorm.DB) error {
		user := models.User{
			FirstName:  data.FirstName,
			LastName:   data.LastName,
			Email:      data.Email,
			SchemaName: schemaName,
		}
		if err := user.SetPassword(data.Password); err != nil {
			return err
		}
		if err := tx.Create(&user).Error; err != nil {
			return err
		}

		contactPerson := models.ContactPerson{
			FirstName:    data.FirstName,
			LastName:     data.LastName,
			Salutation:   data.Salutation,
			Title:        data.Title,
			PhoneNumber:  data.PhoneNumber,
			MobileNumber: data.MobileNumber,
		}
		if err := tx.Create(&contactPerson).Error; err != nil {
			return err
		}

		company = models.Company{
			CompanyName: data.CompanyName,
			Address:     data.Address,
			City:        data.City,
			Country:     data.Country,
			Zip:         data.Zip,
			Homepage:    data.Homepage,
			UID:         data.UID,
			UserId:      user.Id,
			PId:         contactPerson.Id,
			SchemaName:  schemaName,
		}
		if err := tx.Create(&company).Error; err != nil {
			return err
		}
		return database.CreateTenantSchema(tx, schemaName)
	})
	if err != nil {
		h.logger.Error("registration failed", zap.String("schema", schemaName), zap.Error(err))
		return fiber.NewError(fiber.StatusInternalServerError, "registration failed")
	}

	h.db.Preload("User").Preload("ContactPerson").First(&company, "id = ?", company.Id)
	h.logger.Info("tenant registered", zap.String("schema", schemaName))
	return c.Status(fiber.StatusCreated).JSON(company)
}

func (h *AuthController) Login(c *fiber.Ctx) error {
	var data loginDTO
	if err := middlewares.BindAndValidate(c, &data); err != nil {
		return err
	}

	var user models.User
	err := h.db.Where("email = ?", data.Email).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fiber.NewError(fiber.StatusUnauthorized, "invalid credentials")
	}
	if err != nil {
		return err
	}
	if err := user.ComparePassword(data.Password); err != nil {
		return fiber.NewError(fiber.StatusUnauthorized, "invalid credentials")
	}

	token, err := middlewares.GenerateJWT(h.secret, h.tokenTTL, user.Id, user.SchemaName)
	if err != nil {
		return err
	}

	// Tenants registered before a model change pick it up on their next login.
	if err := database.CreateTenantSchema(h.db, user.SchemaName); err != nil {
		h.logger.Error("tenant migration failed", zap.String("schema", user.SchemaName), zap.Error(err))
		return fiber.NewError(fiber.StatusInternalServerError, "could not migrate tenant schema")
	}

	return c.JSON(fiber.Map{
		"token":  token,
		"schema": user.SchemaName,
		"user": fiber.Map{
			"id":    user.Id,
			"name":  user.FirstName + " " + user.LastName,
			"email": user.Email,
		},
	})
}
