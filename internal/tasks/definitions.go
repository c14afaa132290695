package tasks

// DefineTasks registers all available tasks
func DefineTasks() {
	RegisterHandler(InstallmentReminderTask.TaskID(), InstallmentReminderTask.HandleExecution)
	RegisterHandler(StalePaymentSweep.TaskID(), StalePaymentSweep.HandleExecution)
}
