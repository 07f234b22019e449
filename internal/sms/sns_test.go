package sms

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/petchat/internal/model"
)

type mockSNS struct {
	mock.Mock
}

func (m *mockSNS) Publish(ctx context.Context, in *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*sns.PublishOutput)
	return out, args.Error(1)
}

func TestSender_Send(t *testing.T) {
	client := &mockSNS{}
	client.On("Publish", mock.Anything, mock.MatchedBy(func(in *sns.PublishInput) bool {
		return aws.ToString(in.PhoneNumber) == "+15550100" &&
			aws.ToString(in.Message) == "Interview scheduled: Tomorrow at 10:00" &&
			aws.ToString(in.MessageAttributes["AWS.SNS.SMS.SenderID"].StringValue) == "PetChat"
	})).Return(&sns.PublishOutput{MessageId: aws.String("sns-1")}, nil)

	s := NewWithClient(client, "PetChat")
	id, err := s.Send(context.Background(), model.Identity{Phone: " +15550100 "}, &model.Notification{
		Title:   "Interview scheduled",
		Message: "Tomorrow at 10:00",
	})
	require.NoError(t, err)
	assert.Equal(t, "sns-1", id)
	assert.Equal(t, model.ChannelSMS, s.Channel())
	client.AssertExpectations(t)
}

func TestSender_Errors(t *testing.T) {
	client := &mockSNS{}
	client.On("Publish", mock.Anything, mock.Anything).Return(nil, errors.New("throttled"))
	s := NewWithClient(client, "")

	_, err := s.SendText(context.Background(), "", "hi")
	assert.Error(t, err)
	client.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)

	_, err = s.SendText(context.Background(), "+15550100", "hi")
	assert.ErrorContains(t, err, "throttled")
}

func TestText(t *testing.T) {
	assert.Equal(t, "Reminder", Text(&model.Notification{Title: "Reminder"}))

	long := Text(&model.Notification{Title: "T", Message: strings.Repeat("щ", 400)})
	assert.Equal(t, maxTextLength, len([]rune(long)))
	assert.True(t, strings.HasSuffix(long, "..."))
}
