package shared

// Challan, stock and conversion permissions declared for role gating.
const (
	// Challan permissions
	PermChallanView          = "challan.view"
	PermChallanRaise         = "challan.raise"
	PermChallanSubmitPO      = "challan.submit_po"
	PermChallanSubmitManager = "challan.submit_manager"
	PermChallanForward       = "challan.forward"
	PermChallanAllocate      = "challan.allocate"
	PermChallanComplete      = "challan.complete"
	PermChallanHold          = "challan.hold"

	// Stock permissions
	PermStockView    = "stock.view"
	PermStockCorrect = "stock.correct"

	// Conversion permissions
	PermLeadConvert = "conversion.convert"
)

// Well-known roles injected by the gateway.
const (
	RoleSales     = "sales"
	RoleManager   = "manager"
	RoleWarehouse = "warehouse"
	RoleAdmin     = "admin"
)

// RoleGrants maps each role to the permissions it carries. Role assignment
// itself lives in the employee directory; only the grant table is owned here.
func RoleGrants() map[string][]string {
	sales := []string{
		PermChallanView,
		PermChallanRaise,
		PermChallanSubmitPO,
		PermChallanSubmitManager,
		PermChallanHold,
		PermLeadConvert,
		PermStockView,
	}
	manager := []string{
		PermChallanView,
		PermChallanForward,
		PermChallanHold,
		PermStockView,
	}
	warehouse := []string{
		PermChallanView,
		PermChallanAllocate,
		PermChallanComplete,
		PermChallanHold,
		PermStockView,
		PermStockCorrect,
	}
	admin := append(append(append([]string{}, sales...), manager...), warehouse...)
	return map[string][]string{
		RoleSales:     sales,
		RoleManager:   manager,
		RoleWarehouse: warehouse,
		RoleAdmin:     admin,
	}
}
