package repository

// SetupTestDatabase открывает setupTestDatabase для внешних тестов пакета.
var SetupTestDatabase = setupTestDatabase
