package ttsengine

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/haasonsaas/mdflow-engine/pkg/mdflow"
)

// PostgresAudioStore persists LearnGeneratedAudio rows, following the same
// raw-SQL idiom as internal/outline's PostgresStore.
type PostgresAudioStore struct {
	db *sql.DB
}

// NewPostgresAudioStore builds a PostgresAudioStore.
func NewPostgresAudioStore(db *sql.DB) *PostgresAudioStore {
	return &PostgresAudioStore{db: db}
}

func (s *PostgresAudioStore) InsertGeneratedAudio(ctx context.Context, audio *mdflow.LearnGeneratedAudio) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO learn_generated_audio
		   (audio_bid, generated_block_bid, position, progress_record_bid, user_bid, shifu_bid,
		    oss_url, oss_bucket, oss_object_key, duration_ms, file_size, audio_format, sample_rate,
		    voice_id, model, text_length, segment_count, status, error_message, deleted)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,false)`,
		audio.AudioBID, audio.GeneratedBlockBID, audio.Position, audio.ProgressRecordBID, audio.UserBID, audio.ShifuBID,
		audio.OSSURL, audio.OSSBucket, audio.OSSObjectKey, audio.DurationMS, audio.FileSize, audio.AudioFormat, audio.SampleRate,
		audio.VoiceID, audio.Model, audio.TextLength, audio.SegmentCount, string(audio.Status), audio.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("ttsengine: insert generated audio: %w", err)
	}
	return nil
}
