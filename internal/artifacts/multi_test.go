package artifacts_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"

	"github.com/dvloznov/aperture/internal/artifacts"
	"github.com/dvloznov/aperture/internal/pipeline/mocks"
)

func TestMultiWriter_MirrorFailureIsNotFatal(t *testing.T) {
	ctrl := gomock.NewController(t)
	primary := mocks.NewMockArtifactWriter(ctrl)
	mirror := mocks.NewMockArtifactWriter(ctrl)
	payload := []byte(`{}`)

	gomock.InOrder(
		primary.EXPECT().WriteArtifact(gomock.Any(), "a.json", payload).Return(nil),
		mirror.EXPECT().WriteArtifact(gomock.Any(), "a.json", payload).Return(errors.New("403 forbidden")),
	)

	err := artifacts.NewMultiWriter(primary, mirror).WriteArtifact(context.Background(), "a.json", payload)
	assert.NoError(t, err)
}

func TestMultiWriter_PrimaryFailureStops(t *testing.T) {
	ctrl := gomock.NewController(t)
	primary := mocks.NewMockArtifactWriter(ctrl)
	mirror := mocks.NewMockArtifactWriter(ctrl)
	diskFull := errors.New("no space left on device")

	primary.EXPECT().WriteArtifact(gomock.Any(), gomock.Any(), gomock.Any()).Return(diskFull)

	err := artifacts.NewMultiWriter(primary, mirror).WriteArtifact(context.Background(), "a.json", nil)
	assert.ErrorIs(t, err, diskFull)
}

func TestChainReader(t *testing.T) {
	ctrl := gomock.NewController(t)
	local := mocks.NewMockArtifactReader(ctrl)
	remote := mocks.NewMockArtifactReader(ctrl)
	ctx := context.Background()

	local.EXPECT().ReadArtifact(ctx, "a.json").Return(nil, fmt.Errorf("a.json: %w", artifacts.ErrNotFound))
	remote.EXPECT().ReadArtifact(ctx, "a.json").Return([]byte(`{}`), nil)

	data, err := artifacts.NewChainReader(local, remote).ReadArtifact(ctx, "a.json")
	assert.NoError(t, err)
	assert.Equal(t, `{}`, string(data))
}

func TestChainReader_StopsOnOtherErrors(t *testing.T) {
	ctrl := gomock.NewController(t)
	local := mocks.NewMockArtifactReader(ctrl)
	remote := mocks.NewMockArtifactReader(ctrl)
	denied := errors.New("permission denied")

	local.EXPECT().ReadArtifact(gomock.Any(), gomock.Any()).Return(nil, denied)

	_, err := artifacts.NewChainReader(local, remote).ReadArtifact(context.Background(), "a.json")
	assert.ErrorIs(t, err, denied)
}

func TestChainReader_NotFoundAnywhere(t *testing.T) {
	store, err := artifacts.NewFileStore(t.TempDir())
	assert.NoError(t, err)

	_, err = artifacts.NewChainReader(store).ReadArtifact(context.Background(), "a.json")
	assert.ErrorIs(t, err, artifacts.ErrNotFound)
}
