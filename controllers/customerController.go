package controllers

import (
	"errors"

	"esign-backend/middlewares"
	"esign-backend/models"
	"esign-backend/utils"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// CustomerController manages the tenant's CRM clients. Its handlers run
// inside middlewares.TenantTx.
type CustomerController struct {
	logger *zap.Logger
}

func NewCustomerController(logger *zap.Logger) *CustomerController {
	return &CustomerController{logger: logger.With(zap.String("component", "customers"))}
}

type createCustomerDTO struct {
	CompanyName  string `json:"company_name" validate:"required,max=120"`
	Address      string `json:"address" validate:"required"`
	City         string `json:"city" validate:"required"`
	Country      string `json:"country" validate:"required"`
	Zip          string `json:"zip" validate:"required"`
	Homepage     string `json:"homepage" validate:"omitempty,url"`
	UID          string `json:"uid"`
	Email        string `json:"email" validate:"required,email"`
	FirstName    string `json:"first_name" validate:"required"`
	LastName     string `json:"last_name" validate:"required"`
	PhoneNumber  string `json:"phone_number"`
	MobileNumber string `json:"mobile_number"`
	Salutation   string `json:"salutation"`
	Title        string `json:"title"`
}

type updateCustomerDTO struct {
	Address      *string `json:"address" validate:"omitempty,min=1"`
	City         *string `json:"city" validate:"omitempty,min=1"`
	Country      *string `json:"country" validate:"omitempty,min=1"`
	Zip          *string `json:"zip" validate:"omitempty,min=1"`
	Homepage     *string `json:"homepage" validate:"omitempty,url"`
	UID          *string `json:"uid"`
	Email        *string `json:"email" validate:"omitempty,email"`
	PhoneNumber  *string `json:"phone_number"`
	MobileNumber *string `json:"mobile_number"`
}

func (h *CustomerController) CreateCustomer(c *fiber.Ctx) error {
	var data createCustomerDTO
	if err := middlewares.BindAndValidate(c, &data); err != nil {
		return err
	}
	utils.NormalizeDTO(&data)

	customer := models.Customer{
		FirstName:    data.FirstName,
		LastName:     data.LastName,
		Salutation:   data.Salutation,
		Title:        data.Title,
		PhoneNumber:  data.PhoneNumber,
		MobileNumber: data.MobileNumber,
		CompanyName:  data.CompanyName,
		Address:      data.Address,
		City:         data.City,
		Country:      data.Country,
		Zip:          data.Zip,
		Homepage:     data.Homepage,
		UID:          data.UID,
		Email:        data.Email,
		Active:       true,
	}
	if err := middlewares.TenantDB(c).Create(&customer).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fiber.NewError(fiber.StatusConflict, "customer already exists")
		}
		return err
	}
	h.logger.Info("customer created",
		zap.String("schema", middlewares.Schema(c)),
		zap.Uint("customer_id", customer.Id))
	return c.Status(fiber.StatusCreated).JSON(customer)
}

func (h *CustomerController) UpdateCustomer(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return fiber.NewError(fiber.StatusBadRequest, "invalid customer id")
	}
	var data updateCustomerDTO
	if err := middlewares.BindAndValidate(c, &data); err != nil {
		return err
	}
	utils.NormalizePtrDTO(&data)

	updates := utils.UpdatesFromPtrDTO(&data, nil)
	if len(updates) == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "nothing to update")
	}

	tx := middlewares.TenantDB(c)
	res := tx.Model(&models.Customer{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fiber.NewError(fiber.StatusNotFound, "customer not found")
	}
	var customer models.Customer
	if err := tx.First(&customer, id).Error; err != nil {
		return err
	}
	h.logger.Info("customer updated",
		zap.String("schema", middlewares.Schema(c)),
		zap.Int("customer_id", id),
		zap.Int("fields", len(updates)))
	return c.JSON(customer)
}

func (h *CustomerController) GetCustomers(c *fiber.Ctx) error {
	var customers []models.Customer
	if err := middlewares.TenantDB(c).Order("company_name").Find(&customers).Error; err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"customers": customers,
		"message":   "success",
	})
}

func (h *CustomerController) GetCustomer(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return fiber.NewError(fiber.StatusBadRequest, "invalid customer id")
	}
	var customer models.Customer
	err = middlewares.TenantDB(c).First(&customer, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fiber.NewError(fiber.StatusNotFound, "customer not found")
	}
	if err != nil {
		return err
	}
	return c.JSON(customer)
}
