// Package config loads the service configuration.
//
// Values are layered: built-in defaults, then an optional YAML file, then an
// optional .env file, then IKG_-prefixed environment variables
// (IKG_AMQP_TASK_PARALLELISM, IKG_NEO4J_URI, IKG_HARVESTERS, ...). The result
// is validated once and is read-only for the rest of the process lifetime.
//
// Broker keys keep the names of the historical AMQP deployment: an exchange
// is a JetStream stream, a queue a durable consumer and a routing key
// pattern a consumer subject filter.
package config
