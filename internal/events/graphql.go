package events

import "time"

// GraphQLStart is emitted before executing a GraphQL operation.
type GraphQLStart struct {
	Query         string
	OperationName string
	OperationType string
}

// GraphQLFinish is emitted after executing a GraphQL operation.
type GraphQLFinish struct {
	Query         string
	OperationName string
	OperationType string
	Errors        []error
	Duration      time.Duration
}

// SubscriptionStart is emitted when a subscription stream is opened.
type SubscriptionStart struct {
	OperationName string
}

// SubscriptionFinish is emitted after a subscription stream has ended.
type SubscriptionFinish struct {
	OperationName string
	Results       int
	Duration      time.Duration
}
