package store

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	pgdriver "gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/chainfund/custodian/internal/domain"
	"github.com/chainfund/custodian/internal/store/schema"
)

var (
	testDB      *gorm.DB
	pgContainer *postgres.PostgresContainer
)

// TestMain sets up the test database before running tests
func TestMain(m *testing.M) {
	ctx := context.Background()

	// Check if we should use an external database (for CI or local development)
	dbHost := os.Getenv("TEST_DB_HOST")

	var dsn string
	var err error

	if dbHost != "" {
		dbPort := os.Getenv("TEST_DB_PORT")
		if dbPort == "" {
			dbPort = "5432"
		}
		dbUser := os.Getenv("TEST_DB_USER")
		if dbUser == "" {
			dbUser = "postgres"
		}
		dbPassword := os.Getenv("TEST_DB_PASSWORD")
		if dbPassword == "" {
			dbPassword = "postgres"
		}
		dbName := os.Getenv("TEST_DB_NAME")
		if dbName == "" {
			dbName = "test_db"
		}

		dsn = fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
			dbHost, dbPort, dbUser, dbPassword, dbName)
	} else {
		// Start a PostgreSQL container for testing
		pgContainer, err = postgres.Run(ctx,
			"postgres:18-alpine",
			postgres.WithDatabase("test_db"),
			postgres.WithUsername("postgres"),
			postgres.WithPassword("postgres"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(30*time.Second)),
		)
		if err != nil {
			fmt.Printf("Failed to start PostgreSQL container: %v\n", err)
			os.Exit(1)
		}

		dsn, err = pgContainer.ConnectionString(ctx, "sslmode=disable")
		if err != nil {
			fmt.Printf("Failed to get connection string: %v\n", err)
			terminateContainer(ctx)
			os.Exit(1)
		}
	}

	testDB, err = gorm.Open(pgdriver.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		fmt.Printf("Failed to connect to database: %v\n", err)
		terminateContainer(ctx)
		os.Exit(1)
	}

	if err := migrateTestDatabase(testDB); err != nil {
		fmt.Printf("Failed to migrate database: %v\n", err)
		terminateContainer(ctx)
		os.Exit(1)
	}

	code := m.Run()

	terminateContainer(ctx)
	os.Exit(code)
}

func terminateContainer(ctx context.Context) {
	if pgContainer != nil {
		if err := pgContainer.Terminate(ctx); err != nil {
			fmt.Printf("Failed to terminate PostgreSQL container: %v\n", err)
		}
	}
}

func migrateTestDatabase(db *gorm.DB) error {
	return db.AutoMigrate(
		&schema.Account{},
		&schema.AssetCredit{},
		&schema.WalletTx{},
		&schema.WalletNftTx{},
		&schema.Withdrawal{},
		&schema.TrackedContract{},
		&schema.Token{},
		&schema.TransferLog{},
		&schema.VerifiedAddress{},
		&schema.KeyValueStore{},
	)
}

// initPGTestDB returns a store isolated in a transaction that is rolled
// back when the test finishes
func initPGTestDB(t *testing.T) Store {
	t.Helper()
	if testDB == nil {
		t.Fatal("test database not initialized")
	}

	tx := testDB.Begin()
	require.NotNil(t, tx)
	require.NoError(t, tx.Error)

	t.Cleanup(func() {
		tx.Rollback()
	})

	return NewPGStore(tx)
}

var (
	testOwner = domain.AccountRef{UserID: "alice", PlatformID: "discord"}
	testPeer  = domain.AccountRef{UserID: "bob", PlatformID: "discord"}
)

func seedWalletTx(t *testing.T, st Store, valueWei string) int64 {
	t.Helper()
	row := schema.WalletTx{
		Chain:          domain.ChainEthereum,
		TxHash:         fmt.Sprintf("0xdeposit-%d", time.Now().UnixNano()),
		FromAddress:    "0xsender",
		ToAddress:      "0xcustodial",
		ValueWei:       valueWei,
		BlockTimestamp: time.Now().UTC(),
	}
	inserted, err := st.InsertWalletTxs(context.Background(), []schema.WalletTx{row})
	require.NoError(t, err)
	require.Equal(t, int64(1), inserted)

	var stored schema.WalletTx
	require.NoError(t, st.(*pgStore).db.Where("tx_hash = ?", row.TxHash).First(&stored).Error)
	return stored.ID
}

func gasBalance(t *testing.T, st Store, ref domain.AccountRef) decimal.Decimal {
	t.Helper()
	account, err := st.GetAccount(context.Background(), ref)
	require.NoError(t, err)
	require.NotNil(t, account)
	return account.EthGas
}

func TestCreditWalletDepositExactlyOnce(t *testing.T) {
	st := initPGTestDB(t)
	ctx := context.Background()
	id := seedWalletTx(t, st, "1500000000000000000")
	amount := decimal.RequireFromString("1.5")

	require.NoError(t, st.CreditWalletDeposit(ctx, id, testOwner, domain.ChainEthereum, amount))

	// A second credit of the same row must be a no-op
	require.NoError(t, st.CreditWalletDeposit(ctx, id, testOwner, domain.ChainEthereum, amount))

	assert.True(t, gasBalance(t, st, testOwner).Equal(amount),
		"balance %s, want %s", gasBalance(t, st, testOwner), amount)
}

func TestCreditWalletDepositSkipsFailedTx(t *testing.T) {
	st := initPGTestDB(t)
	ctx := context.Background()
	id := seedWalletTx(t, st, "1000000000000000000")

	require.NoError(t, st.MarkWalletTxFailed(ctx, id))
	require.NoError(t, st.CreditWalletDeposit(ctx, id, testOwner, domain.ChainEthereum, decimal.NewFromInt(1)))

	account, err := st.GetAccount(ctx, testOwner)
	require.NoError(t, err)
	assert.Nil(t, account, "failed deposit must not create or credit an account")
}

func TestDebitGasInsufficientBalance(t *testing.T) {
	st := initPGTestDB(t)
	ctx := context.Background()

	require.NoError(t, st.CreditGas(ctx, testOwner, domain.ChainEthereum, decimal.NewFromInt(1)))

	err := st.DebitGas(ctx, testOwner, domain.ChainEthereum, decimal.NewFromInt(2))
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)

	assert.True(t, gasBalance(t, st, testOwner).Equal(decimal.NewFromInt(1)))
}

func TestDebitGasFrozenAccount(t *testing.T) {
	st := initPGTestDB(t)
	ctx := context.Background()

	require.NoError(t, st.CreditGas(ctx, testOwner, domain.ChainEthereum, decimal.NewFromInt(3)))
	require.NoError(t, st.SetAccountFrozen(ctx, testOwner, true))

	err := st.DebitGas(ctx, testOwner, domain.ChainEthereum, decimal.NewFromInt(1))
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
	assert.True(t, gasBalance(t, st, testOwner).Equal(decimal.NewFromInt(3)))
}

func TestTransferGasRollsBackOnInsufficientBalance(t *testing.T) {
	st := initPGTestDB(t)
	ctx := context.Background()

	require.NoError(t, st.CreditGas(ctx, testOwner, domain.ChainEthereum, decimal.NewFromInt(1)))

	err := st.TransferGas(ctx, testOwner, testPeer, domain.ChainEthereum, decimal.NewFromInt(5))
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)

	// Sender untouched, recipient never created, no audit row
	assert.True(t, gasBalance(t, st, testOwner).Equal(decimal.NewFromInt(1)))
	peer, err := st.GetAccount(ctx, testPeer)
	require.NoError(t, err)
	assert.Nil(t, peer)

	var logs int64
	require.NoError(t, st.(*pgStore).db.Model(&schema.TransferLog{}).Count(&logs).Error)
	assert.Zero(t, logs)
}

func TestTransferGasMovesBalanceAndLogs(t *testing.T) {
	st := initPGTestDB(t)
	ctx := context.Background()

	require.NoError(t, st.CreditGas(ctx, testOwner, domain.ChainEthereum, decimal.NewFromInt(2)))
	require.NoError(t, st.TransferGas(ctx, testOwner, testPeer, domain.ChainEthereum, decimal.RequireFromString("0.75")))

	assert.True(t, gasBalance(t, st, testOwner).Equal(decimal.RequireFromString("1.25")))
	assert.True(t, gasBalance(t, st, testPeer).Equal(decimal.RequireFromString("0.75")))

	var logs int64
	require.NoError(t, st.(*pgStore).db.Model(&schema.TransferLog{}).Count(&logs).Error)
	assert.Equal(t, int64(1), logs)
}

func TestCreditNftDepositExactlyOnce(t *testing.T) {
	st := initPGTestDB(t)
	ctx := context.Background()

	row := schema.WalletNftTx{
		Chain:          domain.ChainEthereum,
		TxHash:         "0xnft",
		TokenAddress:   "0xcontract",
		TokenIDHex:     "0x1",
		LogIndex:       3,
		ContractType:   domain.ContractTypeERC1155,
		FromAddress:    "0xsender",
		Amount:         2,
		BlockTimestamp: time.Now().UTC(),
	}
	inserted, err := st.InsertWalletNftTxs(ctx, []schema.WalletNftTx{row})
	require.NoError(t, err)
	require.Equal(t, int64(1), inserted)

	var stored schema.WalletNftTx
	require.NoError(t, st.(*pgStore).db.Where("tx_hash = ?", row.TxHash).First(&stored).Error)

	key := domain.AssetKey{Chain: domain.ChainEthereum, TokenAddress: "0xcontract", TokenIDHex: "0x1"}
	require.NoError(t, st.CreditNftDeposit(ctx, stored.ID, testOwner, key, 2))
	require.NoError(t, st.CreditNftDeposit(ctx, stored.ID, testOwner, key, 2))

	credit, err := st.GetAssetCredit(ctx, key, testOwner)
	require.NoError(t, err)
	require.NotNil(t, credit)
	assert.Equal(t, int64(2), credit.Amount)

	account, err := st.GetAccount(ctx, testOwner)
	require.NoError(t, err)
	require.NotNil(t, account)
	assert.Equal(t, int64(1), account.EthNftDeposited)
}

func TestInsertWalletNftTxsIgnoresKnownEvents(t *testing.T) {
	st := initPGTestDB(t)
	ctx := context.Background()

	base := schema.WalletNftTx{
		Chain: domain.ChainEthereum, TxHash: "0xbatch", TokenAddress: "0xcontract",
		TokenIDHex: "0x2", ContractType: domain.ContractTypeERC1155,
		FromAddress: "0xsender", Amount: 1, BlockTimestamp: time.Now().UTC(),
	}
	first := base
	first.LogIndex = 1
	second := base
	second.LogIndex = 2

	inserted, err := st.InsertWalletNftTxs(ctx, []schema.WalletNftTx{first})
	require.NoError(t, err)
	require.Equal(t, int64(1), inserted)

	// Replaying the stored event inserts nothing; the sibling with a new
	// log index still lands
	inserted, err = st.InsertWalletNftTxs(ctx, []schema.WalletNftTx{
		{Chain: base.Chain, TxHash: base.TxHash, TokenAddress: base.TokenAddress,
			TokenIDHex: base.TokenIDHex, LogIndex: 1, ContractType: base.ContractType,
			FromAddress: base.FromAddress, Amount: 1, BlockTimestamp: base.BlockTimestamp},
		second,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), inserted)
}

func TestTransferAssetInsufficientEditions(t *testing.T) {
	st := initPGTestDB(t)
	ctx := context.Background()
	key := domain.AssetKey{Chain: domain.ChainEthereum, TokenAddress: "0xcontract", TokenIDHex: "0x9"}

	require.NoError(t, st.CreditAsset(ctx, key, testOwner, 1))

	err := st.TransferAsset(ctx, key, testOwner, testPeer, 2)
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)

	credit, err := st.GetAssetCredit(ctx, key, testOwner)
	require.NoError(t, err)
	require.NotNil(t, credit)
	assert.Equal(t, int64(1), credit.Amount)
}

func TestCreateGasWithdrawalRollsBackOnInsufficientBalance(t *testing.T) {
	st := initPGTestDB(t)
	ctx := context.Background()

	require.NoError(t, st.CreditGas(ctx, testOwner, domain.ChainEthereum, decimal.NewFromInt(1)))

	err := st.CreateGasWithdrawal(ctx, CreateWithdrawalInput{
		ID:          "w-over",
		Chain:       domain.ChainEthereum,
		Account:     testOwner,
		Amount:      decimal.NewFromInt(2),
		Destination: "0xdest",
		TxHash:      "0xsubmitted",
	})
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)

	// No intent row without its matching debit
	var count int64
	require.NoError(t, st.(*pgStore).db.Model(&schema.Withdrawal{}).Count(&count).Error)
	assert.Zero(t, count)
	assert.True(t, gasBalance(t, st, testOwner).Equal(decimal.NewFromInt(1)))
}
