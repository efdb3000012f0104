package rabbitmq

import (
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
)

func TestQueueNames(t *testing.T) {
	assert.Equal(t, "title_jobs.retry", RetryQueue("title_jobs"))
	assert.Equal(t, "title_jobs.dlq", DeadQueue("title_jobs"))
}

func TestRetries(t *testing.T) {
	assert.Equal(t, 0, Retries(amqp.Delivery{}))
	assert.Equal(t, 2, Retries(amqp.Delivery{Headers: amqp.Table{RetryHeader: int32(2)}}))
	assert.Equal(t, 3, Retries(amqp.Delivery{Headers: amqp.Table{RetryHeader: int64(3)}}))
	assert.Equal(t, 0, Retries(amqp.Delivery{Headers: amqp.Table{RetryHeader: "x"}}))
}
