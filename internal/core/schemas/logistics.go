package schemas

import "github.com/JonMunkholm/bulkupload/internal/core"

func init() {
	registerValidators()

	core.Register(Trips())
	core.Register(WorkOrders())
	core.Register(Drivers())
}

var csvTypes = []string{".csv", "text/csv"}

func intp(n int) *int           { return &n }
func floatp(f float64) *float64 { return &f }

// Trips is the built-in schema for dispatched trips.
func Trips() core.UploadConfig {
	return core.UploadConfig{
		Key:                "trips",
		Label:              "Trips",
		AcceptedFileTypes:  csvTypes,
		MaxFileSizeMB:      10,
		TemplateURL:        "/api/configs/trips/template",
		AllowMultipleFiles: true,
		EnableMapping:      true,
		KeyColumns:         []string{"tripId"},
		Columns: []core.ColumnConfig{
			{FieldName: "tripId", DisplayName: "Trip ID", Rules: &core.ValidationRule{
				Required: true, Regex: `[A-Z]{2,4}-\d{3,8}`,
			}},
			{FieldName: "driverEmail", DisplayName: "Driver Email", Rules: &core.ValidationRule{
				Type: core.TypeEmail, Required: true,
			}},
			{FieldName: "originState", DisplayName: "Origin State", Rules: &core.ValidationRule{
				Required: true, Custom: USState,
			}},
			{FieldName: "destinationState", DisplayName: "Destination State", Rules: &core.ValidationRule{
				Required: true, Custom: USState,
			}},
			{FieldName: "pickupDate", DisplayName: "Pickup Date", Rules: &core.ValidationRule{
				Type: core.TypeDate, Required: true,
			}},
			{FieldName: "dispatchDate", DisplayName: "Dispatch Date", Rules: &core.ValidationRule{
				Type: core.TypeDate, Custom: DispatchAfterPickup,
			}},
			{FieldName: "weightLbs", DisplayName: "Weight (lbs)", Rules: &core.ValidationRule{
				Type: core.TypeNumber, Required: true, Custom: PositiveWeight,
			}},
			{FieldName: "hazmat", DisplayName: "Hazmat", Rules: &core.ValidationRule{
				Type: core.TypeBoolean,
			}},
		},
	}
}

// WorkOrders is the built-in schema for customer work orders.
func WorkOrders() core.UploadConfig {
	return core.UploadConfig{
		Key:               "work_orders",
		Label:             "Work Orders",
		AcceptedFileTypes: csvTypes,
		MaxFileSizeMB:     5,
		TemplateURL:       "/api/configs/work_orders/template",
		EnableMapping:     true,
		KeyColumns:        []string{"orderNumber"},
		Columns: []core.ColumnConfig{
			{FieldName: "orderNumber", DisplayName: "Order Number", Rules: &core.ValidationRule{
				Required: true, MinLength: intp(4), MaxLength: intp(20),
			}},
			{FieldName: "customer", DisplayName: "Customer", Rules: &core.ValidationRule{
				Required: true, MaxLength: intp(120),
			}},
			{FieldName: "country", DisplayName: "Country", Rules: &core.ValidationRule{
				Required: true, Custom: ISOCountry,
			}},
			{FieldName: "dueDate", DisplayName: "Due Date", Rules: &core.ValidationRule{
				Type: core.TypeDate, Custom: FutureDate,
			}},
			{FieldName: "quantity", DisplayName: "Quantity", Rules: &core.ValidationRule{
				Type: core.TypeNumber, Required: true, Min: floatp(1), Max: floatp(10000),
			}},
			{FieldName: "notes", DisplayName: "Notes", Rules: &core.ValidationRule{
				MaxLength: intp(500),
			}},
		},
	}
}

// Drivers is the built-in schema for the driver roster.
func Drivers() core.UploadConfig {
	return core.UploadConfig{
		Key:               "drivers",
		Label:             "Drivers",
		AcceptedFileTypes: csvTypes,
		MaxFileSizeMB:     2,
		TemplateURL:       "/api/configs/drivers/template",
		EnableMapping:     true,
		KeyColumns:        []string{"email"},
		Columns: []core.ColumnConfig{
			{FieldName: "email", DisplayName: "Email", Rules: &core.ValidationRule{
				Type: core.TypeEmail, Required: true,
			}},
			{FieldName: "firstName", DisplayName: "First Name", Rules: &core.ValidationRule{
				Required: true, MaxLength: intp(50),
			}},
			{FieldName: "lastName", DisplayName: "Last Name", Rules: &core.ValidationRule{
				Required: true, MaxLength: intp(50),
			}},
			{FieldName: "phone", DisplayName: "Phone", Rules: &core.ValidationRule{
				Regex: `\+?[0-9 ()-]{7,20}`,
			}},
			{FieldName: "licenseState", DisplayName: "License State", Rules: &core.ValidationRule{
				Custom: USState,
			}},
			{FieldName: "cdl", DisplayName: "CDL", Rules: &core.ValidationRule{
				Type: core.TypeBoolean,
			}},
		},
	}
}
