package biz

import "github.com/google/wire"

// ProviderSet is biz providers.
var ProviderSet = wire.NewSet(
	NewBillingConfig,
	NewAgentConfig,
	NewPriceCatalog,
	NewUsageCalculator,
	NewItemLedger,
	NewProjectLedger,
	NewExhaustionEnforcer,
	NewReconcileUseCase,
	NewAccountUseCase,
)
