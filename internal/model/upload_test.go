package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUploadFieldStates(t *testing.T) {
	file := &File{Name: "a.png", Data: []byte{1, 2, 3}}

	pending := PendingFile(file)
	got, ok := pending.Pending()
	require.True(t, ok)
	assert.Equal(t, file, got)
	_, uploaded := pending.URL()
	assert.False(t, uploaded)

	done := UploadedURL("https://cdn.example.com/a.png")
	url, uploaded := done.URL()
	require.True(t, uploaded)
	assert.Equal(t, "https://cdn.example.com/a.png", url)
	_, isPending := done.Pending()
	assert.False(t, isPending)
}

func TestUploadFieldMarshal(t *testing.T) {
	// Uploaded 序列化为纯 URL 字符串
	data, err := json.Marshal(map[string]interface{}{
		"avatar": UploadedURL("https://cdn.example.com/a.png"),
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"avatar":"https://cdn.example.com/a.png"}`, string(data))

	// Pending 字段必须先经过上传管线，直接序列化是编程错误
	_, err = json.Marshal(PendingFile(&File{Name: "a.png", Data: []byte{1}}))
	require.Error(t, err)
}

func TestOnboardingStatusClone(t *testing.T) {
	original := &OnboardingStatus{
		Role:     RoleWorker,
		Progress: map[StepName]bool{"basic": true},
	}

	clone := original.Clone()
	clone.Progress["basic"] = false
	clone.Progress["pricing"] = true

	assert.True(t, original.Progress["basic"], "clone must not share the progress map")
	assert.NotContains(t, original.Progress, StepName("pricing"))

	var nilStatus *OnboardingStatus
	assert.Nil(t, nilStatus.Clone())
}

func TestFileSize(t *testing.T) {
	assert.Equal(t, int64(3), (&File{Data: []byte{1, 2, 3}}).Size())
	var nilFile *File
	assert.Equal(t, int64(0), nilFile.Size())
}
