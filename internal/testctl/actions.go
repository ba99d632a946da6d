package testctl

// Indirection layer to allow stubbing in tests

var (
	fnInstallGo        = installGo
	fnInstallLlama     = installLlama
	fnInstallLlamaCUDA = installLlamaCUDA

	fnRunGoTests = runGoTests
	fnRunSmoke   = runSmoke

	fnHasHostModels = hasHostModels
)
