package layers

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jengzang/loi-backend-go/internal/analysis"
	"github.com/jengzang/loi-backend-go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestReportPath(t *testing.T) {
	assert.Equal(t, filepath.Join("out", "LOI_Address.xlsx"), ReportPath("out", "LOI", AddressReport, "xlsx"))
	assert.Equal(t, filepath.Join("out", "LOI_Accounts.csv"), ReportPath("out", "LOI", AccountReport, "csv"))
}

func TestWriteTable_CSV(t *testing.T) {
	fields := analysis.DefaultParams().Fields
	rows := []models.AccountJoinRow{
		{Rank: 1, IncidentCount: 4, IdentityCount: 2, IncidentIndex: 1, IdentityIndex: 0.25, CompositeScore: 62.5,
			PoliceJurisdiction: "CARLTON", AccountID: "C1", AccountName: "Alice, A", SourceAddress: "1.2.3.4"},
	}

	path := filepath.Join(t.TempDir(), "LOI_Accounts.csv")
	require.NoError(t, WriteTable(path, AccountTable(rows, fields)))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t,
		"LOI,INCIDENTS,IDENTITIES,InCd_Indx,Id_Indx,IndexCalc,VicPolSTN,CUSTOMER I,CUSTOMER N,IP ADDRESS\n"+
			"1,4,2,1,0.25,62.5,CARLTON,C1,\"Alice, A\",1.2.3.4\n",
		string(data))
}

func TestWriteTable_Workbook(t *testing.T) {
	fields := analysis.DefaultParams().Fields
	rows := []models.AddressJoinRow{
		{Rank: 1, IncidentCount: 3, IdentityCount: 1, CompositeScore: 50, PoliceJurisdiction: "CARLTON", Address: "1 HIGH ST"},
		{Rank: 2, IncidentCount: 1, IdentityCount: 1},
	}

	path := filepath.Join(t.TempDir(), "LOI_Address.xlsx")
	require.NoError(t, WriteTable(path, AddressTable(rows, fields)))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"LOI_Address"}, f.GetSheetList())
	got, err := f.GetRows("LOI_Address")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"LOI", "INCIDENTS", "IDENTITIES", "InCd_Indx", "Id_Indx", "IndexCalc", "VicPolSTN", "EZI_ADD"}, got[0])
	assert.Equal(t, "1", got[1][0])
	assert.Equal(t, "1 HIGH ST", got[1][7])
	assert.Equal(t, "2", got[2][0])
}

func TestWriteTable_UnsupportedFormat(t *testing.T) {
	err := WriteTable(filepath.Join(t.TempDir(), "r.ods"), Table{})
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}
