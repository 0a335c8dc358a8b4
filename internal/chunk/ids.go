package chunk

import (
	"strconv"

	"github.com/starford/dossier/internal/models"
)

// AssignIDs sets Seq and ID on chunks in place and returns them. The counter
// restarts at 0 whenever the (source, page) pair differs from the previous
// chunk, so the result depends only on chunk order and positions.
func AssignIDs(chunks []models.Chunk) []models.Chunk {
	var (
		lastKey string
		seq     int
	)
	for i := range chunks {
		key := chunks[i].Source + ":" + strconv.Itoa(chunks[i].Page)
		if i > 0 && key == lastKey {
			seq++
		} else {
			seq = 0
		}
		chunks[i].Seq = seq
		chunks[i].ID = key + ":" + strconv.Itoa(seq)
		lastKey = key
	}
	return chunks
}

// IDs returns the identifiers of chunks in order.
func IDs(chunks []models.Chunk) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.ID
	}
	return out
}
