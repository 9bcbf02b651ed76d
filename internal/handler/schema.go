package handler

import (
	"net/http"

	"github.com/cortexai/opsinsight/internal/models"
	"github.com/cortexai/opsinsight/internal/schema"
)

// SchemaHandler lists the allow-listed tables
type SchemaHandler struct {
	tables []models.TableInfo
}

func NewSchemaHandler(desc *schema.Descriptor) *SchemaHandler {
	tables := make([]models.TableInfo, len(desc.Tables))
	for i, t := range desc.Tables {
		cols := make([]models.ColumnInfo, len(t.Columns))
		for j, c := range t.Columns {
			cols[j] = models.ColumnInfo{Name: c.Name, Type: c.Type}
		}
		tables[i] = models.TableInfo{Name: t.Name, Description: t.Description, Columns: cols}
	}
	return &SchemaHandler{tables: tables}
}

// ListTables handles GET /api/v1/schema
func (h *SchemaHandler) ListTables(w http.ResponseWriter, r *http.Request) {
	models.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status": "success",
		"tables": h.tables,
		"count":  len(h.tables),
	})
}
