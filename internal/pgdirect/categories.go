// internal/pgdirect/categories.go
package pgdirect

// Category groups business tables for the cleanup scan.
type Category struct {
	Name        string
	Description string
	Tables      []string
}

// OtherCategory holds tables that belong to no known category.
const OtherCategory = "Other"

// Categories is the fixed business grouping, in display order.
var Categories = []Category{
	{
		Name:        "Sales & Transactions",
		Description: "Sales records, POS transactions, and related data",
		Tables: []string{
			"lats_sales", "lats_sale_items", "lats_receipts", "account_transactions",
			"payment_transactions", "mobile_money_transactions", "customer_payments",
			"installment_payments", "gift_card_transactions", "points_transactions",
		},
	},
	{
		Name:        "Customers",
		Description: "Customer profiles, communications, and activity",
		Tables: []string{
			"lats_customers", "customer_notes", "customer_messages", "customer_communications",
			"customer_checkins", "customer_preferences", "customer_revenue", "customer_special_orders",
			"customer_installment_plans", "customer_installment_plan_payments", "customer_points_history",
			"whatsapp_customers", "contact_history", "contact_methods", "contact_preferences", "buyer_details",
		},
	},
	{
		Name:        "Inventory & Products",
		Description: "Products, stock movements, and inventory tracking",
		Tables: []string{
			"lats_products", "lats_product_variants", "lats_inventory_items", "inventory_items",
			"lats_stock_movements", "lats_inventory_adjustments", "product_images", "product_interests",
			"imei_validation", "serial_number_movements", "lats_product_validation",
		},
	},
	{
		Name:        "Purchase Orders & Suppliers",
		Description: "Purchase orders, supplier data, and receiving records",
		Tables: []string{
			"lats_purchase_orders", "lats_purchase_order_items", "lats_purchase_order_payments",
			"lats_purchase_order_audit_log", "purchase_order_audit", "purchase_order_messages",
			"purchase_order_payments", "purchase_order_quality_checks", "purchase_order_quality_check_items",
			"lats_suppliers", "suppliers",
		},
	},
	{
		Name:        "Devices & Repairs",
		Description: "Device repair tracking, diagnostics, and service records",
		Tables: []string{
			"devices", "device_attachments", "device_checklists", "device_ratings", "device_remarks",
			"device_transitions", "diagnostic_requests", "diagnostic_devices", "diagnostic_checks",
			"diagnostic_checklist_results", "diagnostic_problem_templates", "diagnostic_templates",
			"repair_parts", "quality_checks", "quality_check_items", "quality_check_results",
			"quality_check_criteria", "quality_check_templates",
		},
	},
	{
		Name:        "Trade-Ins",
		Description: "Trade-in transactions and assessments",
		Tables: []string{
			"lats_trade_in_transactions", "lats_trade_in_contracts", "lats_trade_in_damage_assessments",
			"lats_trade_in_prices", "lats_trade_in_settings",
		},
	},
	{
		Name:        "Employees & Attendance",
		Description: "Employee records, shifts, and attendance tracking",
		Tables: []string{
			"employees", "lats_employees", "employees_backup_migration", "employee_shifts",
			"attendance_records", "shift_templates", "leave_requests", "user_daily_goals",
			"user_branch_assignments",
		},
	},
	{
		Name:        "Communications",
		Description: "SMS, email, WhatsApp, and notification logs",
		Tables: []string{
			"sms_logs", "sms_triggers", "sms_trigger_logs", "email_logs", "chat_messages",
			"communication_log", "communication_templates", "notifications", "notification_templates",
			"whatsapp_message_templates", "whatsapp_templates", "whatsapp_instances_comprehensive",
		},
	},
	{
		Name:        "Finance & Expenses",
		Description: "Expense tracking, accounts, and financial records",
		Tables: []string{
			"expenses", "finance_expenses", "expense_categories", "finance_expense_categories",
			"finance_accounts", "finance_transfers", "recurring_expenses", "recurring_expense_history",
		},
	},
	{
		Name:        "Shipping & Logistics",
		Description: "Shipping records and cargo tracking",
		Tables:      []string{"lats_shipping", "lats_shipping_cargo_items"},
	},
	{
		Name:        "Branches & Transfers",
		Description: "Branch transfers and stock movement between locations",
		Tables:      []string{"branch_transfers", "branch_activity_log", "scheduled_transfers", "scheduled_transfer_executions"},
	},
	{
		Name:        "Spare Parts",
		Description: "Spare parts inventory and usage tracking",
		Tables:      []string{"lats_spare_parts", "lats_spare_part_variants", "lats_spare_part_usage"},
	},
	{
		Name:        "System & Audit Logs",
		Description: "System logs, audit trails, and API logs",
		Tables:      []string{"audit_logs", "api_request_logs", "webhook_logs", "admin_settings_log", "auto_reorder_log"},
	},
	{
		Name:        "Sales & Marketing",
		Description: "Sales pipeline, appointments, and customer engagement",
		Tables:      []string{"sales_pipeline", "appointments", "reminders", "special_order_payments"},
	},
	{
		Name:        "Returns & Gift Cards",
		Description: "Product returns and gift card management",
		Tables:      []string{"returns", "gift_cards"},
	},
	{
		Name:        "Backup Tables",
		Description: "System backup and migration tables",
		Tables:      []string{"customer_fix_backup"},
	},
}

var categoryByTable = func() map[string]string {
	m := map[string]string{}
	for _, c := range Categories {
		for _, t := range c.Tables {
			if _, dup := m[t]; !dup {
				m[t] = c.Name
			}
		}
	}
	return m
}()

// CategoryFor returns the category name of table, or OtherCategory.
func CategoryFor(table string) string {
	if name, ok := categoryByTable[table]; ok {
		return name
	}
	return OtherCategory
}
