package events

// EventData is the interface that all event data types must implement
type EventData interface {
	// EventType returns the event type this data is associated with
	EventType() EventType
}

// CycleStartedData contains data for CycleStarted events
type CycleStartedData struct {
	CycleID string `json:"cycle_id"`
	DryRun  bool   `json:"dry_run"`
	Trigger string `json:"trigger"`
}

// EventType returns the event type for CycleStartedData
func (d *CycleStartedData) EventType() EventType {
	return CycleStarted
}

// RatingsFetchedData contains data for RatingsFetched events
type RatingsFetchedData struct {
	CycleID  string `json:"cycle_id"`
	Total    int    `json:"total"`
	Admitted int    `json:"admitted"`
}

// EventType returns the event type for RatingsFetchedData
func (d *RatingsFetchedData) EventType() EventType {
	return RatingsFetched
}

// AllocationReadyData contains data for AllocationReady events
type AllocationReadyData struct {
	CycleID string             `json:"cycle_id"`
	Targets map[string]float64 `json:"targets"`
	Total   float64            `json:"total"`
}

// EventType returns the event type for AllocationReadyData
func (d *AllocationReadyData) EventType() EventType {
	return AllocationReady
}

// ReportWrittenData contains data for ReportWritten events
type ReportWrittenData struct {
	CycleID string `json:"cycle_id"`
	Rows    int    `json:"rows"`
}

// EventType returns the event type for ReportWrittenData
func (d *ReportWrittenData) EventType() EventType {
	return ReportWritten
}

// PositionsLoadedData contains data for PositionsLoaded events
type PositionsLoadedData struct {
	CycleID          string  `json:"cycle_id"`
	Count            int     `json:"count"`
	TotalMarketValue float64 `json:"total_market_value"`
}

// EventType returns the event type for PositionsLoadedData
func (d *PositionsLoadedData) EventType() EventType {
	return PositionsLoaded
}

// OrdersPlannedData contains data for OrdersPlanned events
type OrdersPlannedData struct {
	CycleID     string `json:"cycle_id"`
	Buys        int    `json:"buys"`
	Sells       int    `json:"sells"`
	Liquidating int    `json:"liquidating"`
}

// EventType returns the event type for OrdersPlannedData
func (d *OrdersPlannedData) EventType() EventType {
	return OrdersPlanned
}

// OrderSubmittedData contains data for OrderSubmitted events
type OrderSubmittedData struct {
	CycleID string `json:"cycle_id"`
	OrderID int64  `json:"order_id"`
	Symbol  string `json:"symbol"`
	Action  string `json:"action"`
	Shares  int64  `json:"shares"`
}

// EventType returns the event type for OrderSubmittedData
func (d *OrderSubmittedData) EventType() EventType {
	return OrderSubmitted
}

// OrderStatusData contains data for OrderStatusChange events
type OrderStatusData struct {
	OrderID   int64   `json:"order_id"`
	Status    string  `json:"status"`
	Filled    float64 `json:"filled"`
	Remaining float64 `json:"remaining"`
	Terminal  bool    `json:"terminal"`
}

// EventType returns the event type for OrderStatusData
func (d *OrderStatusData) EventType() EventType {
	return OrderStatusChange
}

// OrdersAbandonedData contains data for OrdersAbandoned events
type OrdersAbandonedData struct {
	CycleID  string  `json:"cycle_id"`
	OrderIDs []int64 `json:"order_ids"`
}

// EventType returns the event type for OrdersAbandonedData
func (d *OrdersAbandonedData) EventType() EventType {
	return OrdersAbandoned
}

// CycleCompletedData contains data for CycleCompleted events
type CycleCompletedData struct {
	CycleID    string  `json:"cycle_id"`
	Orders     int     `json:"orders"`
	Submitted  int     `json:"submitted"`
	DryRun     bool    `json:"dry_run"`
	DurationMs int64   `json:"duration_ms"`
	Error      *string `json:"error,omitempty"`
}

// EventType returns the event type for CycleCompletedData
func (d *CycleCompletedData) EventType() EventType {
	return CycleCompleted
}

// ErrorEventData contains data for ErrorOccurred events
type ErrorEventData struct {
	Error   string                 `json:"error"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// EventType returns the event type for ErrorEventData
func (d *ErrorEventData) EventType() EventType {
	return ErrorOccurred
}
