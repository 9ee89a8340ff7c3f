package rabbitmq

import amqp "github.com/rabbitmq/amqp091-go"

// declareTopology declares the work queue with its retry and dead-letter
// queues, plus the replies queue. Publisher and consumer both call it so
// the queue arguments always match.
func declareTopology(ch *amqp.Channel, queue string) error {
	mainQ := queue
	retryQ := queue + ".retry"
	dlqQ := queue + ".dlq"

	// DLQ
	if _, err := ch.QueueDeclare(dlqQ, true, false, false, false, nil); err != nil {
		return err
	}

	// Retry queue: message TTL -> dead-letter back to main queue
	if _, err := ch.QueueDeclare(retryQ, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": mainQ,
	}); err != nil {
		return err
	}

	// Main queue: dead-letter to DLQ on reject/nack(requeue=false)
	if _, err := ch.QueueDeclare(mainQ, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": dlqQ,
	}); err != nil {
		return err
	}

	_, err := ch.QueueDeclare(RepliesQueue(queue), true, false, false, false, nil)
	return err
}

func RepliesQueue(queue string) string { return queue + ".replies" }
