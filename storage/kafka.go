package storage

import (
	"encoding/json"
	"regexp"
	"strconv"
	"time"

	"github.com/janelia-flyem/mrf/dvid"

	"github.com/Shopify/sarama"
)

var (
	// producer
	kafkaProducer sarama.AsyncProducer

	// the kafka topic for activity logging
	kafkaActivityTopicName string
)

// KafkaMaxMessageSize is the max message size in bytes for a Kafka message.
const KafkaMaxMessageSize = 980 * dvid.Kilo

// KafkaConfig describes kafka servers used to publish relaxation activity.
type KafkaConfig struct {
	TopicActivity string // if supplied, will be override topic for activity log
	Servers       []string
	BufferSize    int // producer channel buffer size
}

// KafkaActivityTopic returns the topic name used for logging activity for this server.
func KafkaActivityTopic() string {
	return kafkaActivityTopicName
}

// Initialize sets up the activity topic and the producer.  Without servers it does
// nothing and activity is not published.
func (kc KafkaConfig) Initialize(hostID string) error {
	if len(kc.Servers) == 0 {
		return nil
	}
	config := sarama.NewConfig()
	config.Producer.MaxMessageBytes = KafkaMaxMessageSize
	if kc.BufferSize > 0 {
		config.ChannelBufferSize = kc.BufferSize
	}
	producer, err := sarama.NewAsyncProducer(kc.Servers, config)
	if err != nil {
		return err
	}
	return kc.setProducer(hostID, producer)
}

func (kc KafkaConfig) setProducer(hostID string, producer sarama.AsyncProducer) error {
	if kc.TopicActivity != "" {
		kafkaActivityTopicName = kc.TopicActivity
	} else {
		kafkaActivityTopicName = "mrfactivity-" + hostID
	}
	reg, err := regexp.Compile(`[^a-zA-Z0-9\._\-]+`)
	if err != nil {
		return err
	}
	kafkaActivityTopicName = reg.ReplaceAllString(kafkaActivityTopicName, "-")
	kafkaProducer = producer

	go func() {
		for err := range producer.Errors() {
			dvid.Errorf("error on kafka send to topic %q: %v\n", err.Msg.Topic, err.Err)
		}
	}()
	dvid.Infof("Kafka topic for relaxation activity: %s\n", kafkaActivityTopicName)
	return nil
}

// KafkaShutdown makes sure that the kafka queue is flushed before stopping.
func KafkaShutdown() {
	if kafkaProducer != nil {
		if err := kafkaProducer.Close(); err != nil {
			dvid.Errorf("Kafka producer had error on close: %v\n", err)
		} else {
			dvid.Infof("Successfully shut down kafka producer.\n")
		}
		kafkaProducer = nil
	} else {
		dvid.Debugf("Kafka producer was nil so unnecessary to close.\n")
	}
}

// LogActivityToKafka publishes activity asynchronously.
func LogActivityToKafka(activity map[string]interface{}) {
	if kafkaProducer != nil {
		go func() {
			if err := publishActivity(activity); err != nil {
				dvid.Errorf("unable to publish activity: %v\n", err)
			}
		}()
	}
}

func publishActivity(activity map[string]interface{}) error {
	jsonmsg, err := json.Marshal(activity)
	if err != nil {
		return err
	}
	return KafkaProduceMsg(jsonmsg, kafkaActivityTopicName)
}

// KafkaProduceMsg sends a message to kafka
func KafkaProduceMsg(value []byte, topicName string) error {
	if kafkaProducer == nil {
		return nil
	}
	timeKey := sarama.StringEncoder(strconv.FormatInt(time.Now().UnixNano(), 10))
	msg := &sarama.ProducerMessage{Topic: topicName, Value: sarama.ByteEncoder(value), Key: timeKey}
	kafkaProducer.Input() <- msg
	return nil
}
